package main

import "github.com/pushgate/pushgate/internal/cli"

func main() {
	cli.Main()
}
