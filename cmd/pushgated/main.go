package main

import "github.com/pushgate/pushgate/internal/daemon"

func main() {
	daemon.Main()
}
