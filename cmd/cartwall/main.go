package main

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

	"github.com/friendsincode/grimnir_cartwall/internal/config"
	"github.com/friendsincode/grimnir_cartwall/internal/logging"
	"github.com/friendsincode/grimnir_cartwall/internal/player"
	"github.com/friendsincode/grimnir_cartwall/internal/server"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cartwall",
	Short: "Grimnir Cartwall - soundboard server and player for live production",
	Long:  "Grimnir Cartwall serves a shared soundboard over HTTP and WebSocket and plays triggered sounds on a local audio device.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cartwall server",
	Long:  "Start the HTTP API, WebSocket hub, and sound directory watcher",
	RunE:  runServe,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run the headless player",
	Long:  "Connect to a cartwall server as the player endpoint and render triggered sounds on the local audio device",
	RunE:  runPlay,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Grimnir Cartwall starting")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Grimnir Cartwall stopped")
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("server", cfg.ServerURL).Msg("Grimnir Cartwall player starting")

	output, err := player.NewBeepOutput()
	if err != nil {
		return fmt.Errorf("initialize audio output: %w", err)
	}

	// The client forwards engine lifecycle events to the hub, and the
	// engine is driven by hub frames the client dispatches. Wire the
	// notifier through a late-bound variable to break the construction cycle.
	var client *player.Client
	engine := player.NewEngine(player.NewBeepLoader(nil), output, func(action, soundID string) {
		client.Notify(action, soundID)
	}, logger)
	client = player.NewClient(cfg.ServerURL, cfg.ReconnectDelay, engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("stopping player...")
	engine.StopAll()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	logger.Info().Msg("Grimnir Cartwall player stopped")
	return nil
}
