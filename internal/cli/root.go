package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pushgate/pushgate/internal/auth"
	"github.com/pushgate/pushgate/internal/config"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "pushgate",
		Short: "Pushgate CLI",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(tokenCmd(&cfgPath))
	root.AddCommand(notifyCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func tokenCmd(cfgPath *string) *cobra.Command {
	var user int64
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tok, err := auth.Mint(cfg.Auth.Secret, user, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "member id the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func notifyCmd(cfgPath *string) *cobra.Command {
	var server string
	var user int64
	var message string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Create an alarm for a member (delivered live if they are connected)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if server == "" {
				server = "http://" + cfg.API.Listen
			}
			tok, err := auth.Mint(cfg.Auth.Secret, user, 5*time.Minute)
			if err != nil {
				return err
			}

			body, _ := json.Marshal(map[string]any{"member_id": user, "message": message})
			req, err := http.NewRequest(http.MethodPost, server+"/api/v1/alarms", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+tok)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(out))
			}
			fmt.Printf("%s", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "API base URL (default from config api.listen)")
	cmd.Flags().Int64Var(&user, "user", 0, "member id to notify")
	cmd.Flags().StringVar(&message, "message", "", "alarm message")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
