package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pushgate/pushgate/internal/api"
	"github.com/pushgate/pushgate/internal/config"
	"github.com/pushgate/pushgate/internal/db"
	"github.com/pushgate/pushgate/internal/hub"
	"github.com/pushgate/pushgate/internal/store"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{Use: "pushgated", Short: "Pushgate daemon (API + notification hub)"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			return db.ApplyMigrations(ctx, dbConn)
		},
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and notification hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log.Level)

			ctx := context.Background()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			if err := db.ApplyMigrations(ctx, dbConn); err != nil {
				return err
			}

			st := store.New(dbConn)

			tracker := hub.NewActivityTracker()
			registry := hub.NewRegistry(cfg.Hub.ChannelBuffer, tracker, log)
			backlog := hub.NewBacklog(cfg.Hub.BacklogCapacity, log)
			dispatcher := hub.NewDispatcher(registry, backlog, tracker, log)
			svc := hub.NewService(registry, backlog, dispatcher, tracker, st, log)

			supervisor := hub.NewSupervisor(hub.SupervisorConfig{
				HeartbeatInterval: cfg.Hub.HeartbeatInterval,
				CleanupInterval:   cfg.Hub.CleanupInterval,
				ConnectionTimeout: cfg.Hub.ConnectionTimeout,
			}, dispatcher, registry, tracker, log)
			if err := supervisor.Start(); err != nil {
				return fmt.Errorf("start supervisor: %w", err)
			}

			h := api.New(cfg, st, svc, log)
			srv := &http.Server{Addr: cfg.API.Listen, Handler: h.Router()}

			go func() {
				log.Info().Str("listen", cfg.API.Listen).Msg("pushgated listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("listen error")
				}
			}()

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			log.Info().Msg("shutting down")

			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// Stop periodic tasks before releasing registry state, then drop
			// every live stream so the SSE handlers unwind.
			supervisor.Stop(shCtx)
			svc.Shutdown()

			if err := srv.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}
