package cmd

import (
	"github.com/spf13/cobra"

	"iris/internal/logger"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "iris",
	Short: "Iris - local control facade for webOS TVs",
	Long: `Iris exposes a webOS TV's remote-control protocol over a local HTTP API.
It handles pairing, session management, power control via Wake-on-LAN,
app launching, and remote button events.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel("debug")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tvCmd)
	rootCmd.AddCommand(cliCmd)
}
