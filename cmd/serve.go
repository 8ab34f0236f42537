package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"iris/internal/credstore"
	"iris/internal/facade"
	"iris/internal/logger"
	"iris/internal/tv"
)

var (
	serveConfigPath string
	serveInitConfig bool
	serveJSONLogs   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control facade",
	Long: `Start the local HTTP server that exposes TV control operations:
power on/off, status, app launching, remote buttons, and pairing setup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveInitConfig {
			return writeDefaultConfig(serveConfigPath)
		}

		config, err := facade.LoadConfig(serveConfigPath)
		if err != nil {
			return err
		}

		logger.SetSilentMode(false)
		if serveJSONLogs {
			logger.SetJSONOutput(os.Stderr)
		}
		logger.SetLevel(config.Logging.Level)
		log = logger.New()

		store := credstore.NewStore(config.Store.Path)
		controller := tv.NewController(store, config.ControllerConfig())
		defer controller.Close()

		server := facade.NewServer(controller, config)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		log.Info().
			Str("address", config.Server.Address).
			Str("tv_host", config.Device.Host).
			Msg("Iris facade running")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	},
}

// writeDefaultConfig creates a starter config file for the user to edit.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing config at %s", path)
	}

	if err := facade.SaveConfig(facade.NewDefaultConfig(), path); err != nil {
		return err
	}

	fmt.Printf("Wrote default config to %s - fill in device host and mac before serving\n", path)
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "iris.yml", "path to config file")
	serveCmd.Flags().BoolVar(&serveInitConfig, "init-config", false, "write a default config file and exit")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "emit structured JSON logs instead of console output")
}
