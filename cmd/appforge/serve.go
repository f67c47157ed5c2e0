package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/awsl-project/appforge/internal/core"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repos, err := core.InitializeDatabase(cfg)
		if err != nil {
			return err
		}
		defer core.CloseDatabase(repos)

		instanceID := uuid.NewString()
		components, err := core.InitializeServerComponents(repos, cfg, instanceID, os.Stdout)
		if err != nil {
			return err
		}

		core.StartBackgroundTasks(ctx, core.BackgroundTaskDeps{
			Generations:   repos.GenerationRepo,
			Attempts:      repos.AttemptRepo,
			Cooldowns:     components.Cooldowns,
			RetentionDays: cfg.GenerationRetentionDays,
		})

		srv, err := core.NewManagedServer(&core.ServerConfig{
			Addr:       cfg.Addr,
			DataDir:    cfg.DataDir,
			InstanceID: instanceID,
			Components: components,
			WebDir:     cfg.WebDir,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}

		addr := srv.GetAddr()
		log.Printf("Data directory: %s", cfg.DataDir)
		log.Printf("Generate: POST http://%s/api/generate", addr)
		log.Printf("Admin API: http://%s/api/", addr)
		log.Printf("WebSocket: ws://%s/ws", addr)

		<-ctx.Done()
		log.Printf("Shutting down")
		return srv.Stop(context.Background())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $APPFORGE_ADDR or :9880)")
}
