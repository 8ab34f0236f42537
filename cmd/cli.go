package cmd

import (
	"github.com/spf13/cobra"

	"iris/cmd/cli"
	"iris/internal/logger"
)

var (
	cliHost  string
	cliMAC   string
	cliStore string
	cliDebug bool
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive remote control",
	Long: `Launch the interactive Terminal User Interface (TUI) remote.
Pair with a TV from the setup screen, then drive it with keyboard shortcuts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// TUI owns the terminal, keep logging out of the way unless debugging
		if cliDebug {
			logger.SetSilentMode(false)
			logger.SetLevel("debug")
		} else {
			logger.SetSilentMode(true)
		}

		log := logger.New()
		log.Info().
			Bool("debug", cliDebug).
			Msg("Starting Iris remote interface")

		if err := cli.StartTUI(cliHost, cliMAC, cliStore, cliDebug); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			return err
		}

		return nil
	},
}

func init() {
	cliCmd.Flags().StringVarP(&cliHost, "host", "H", "", "TV host address to prefill")
	cliCmd.Flags().StringVarP(&cliMAC, "mac", "m", "", "TV MAC address to prefill")
	cliCmd.Flags().StringVarP(&cliStore, "store", "s", "store.json", "credential store path")
	cliCmd.Flags().BoolVar(&cliDebug, "debug", false, "Enable debug logging")
}
