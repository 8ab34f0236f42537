package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"iris/internal/credstore"
	"iris/internal/logger"
	"iris/internal/tv"
	"iris/internal/webos"
)

var (
	tvHost      string
	tvMAC       string
	tvStorePath string
	tvDebug     bool
)

var tvCmd = &cobra.Command{
	Use:   "tv",
	Short: "Control an LG webOS TV",
	Long: `Control an LG webOS TV over its websocket interface.
Supports power control, status queries, app launching, and remote buttons.`,
}

// newTVController builds a one-shot controller from the tv command flags.
func newTVController() *tv.Controller {
	if tvDebug {
		logger.SetSilentMode(false)
		logger.SetLevel("debug")
	}

	store := credstore.NewStore(tvStorePath)
	return tv.NewController(store, tv.Config{
		Host: tvHost,
		MAC:  tvMAC,
	})
}

var tvPairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with the TV",
	Long: `Establish a session with the TV and complete pairing.
The TV shows an on-screen prompt that must be accepted with the remote.
The granted credential is persisted for later commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		fmt.Println("Connecting to TV - accept the pairing prompt on screen if asked")

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		if err := controller.BeginPairing(ctx); err != nil {
			log.Error().Err(err).Msg("Pairing failed")
			return err
		}

		fmt.Println("Paired - credential stored")
		return nil
	},
}

var tvStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show TV status",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		status, err := controller.Status(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read status")
			return err
		}

		printJSON(status)
		return nil
	},
}

var tvAppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List installed applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		apps, err := controller.ListApps(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list apps")
			return err
		}

		for _, app := range apps {
			fmt.Printf("%-40s %s\n", app.ID, app.Title)
		}
		return nil
	},
}

var tvCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the foreground application",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		app, err := controller.CurrentApp(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read foreground app")
			return err
		}

		printJSON(app)
		return nil
	},
}

var tvLaunchCmd = &cobra.Command{
	Use:   "launch [app-id]",
	Short: "Launch an application",
	Long:  `Launch an application by its webOS app ID, e.g. netflix or youtube.leanback.v4.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		launched, err := controller.LaunchApp(ctx, args[0])
		if err != nil {
			log.Error().Err(err).Msg("Failed to launch app")
			return err
		}

		fmt.Printf("Launched %s\n", launched)
		return nil
	},
}

var tvButtonCmd = &cobra.Command{
	Use:   "button [name]",
	Short: "Send a remote control button",
	Long: `Send a remote control button press over the pointer input socket.
Use 'iris tv button list' to see available button names.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "list" {
			fmt.Println("Available buttons:")
			for _, name := range webos.ButtonNames() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		}

		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		if err := controller.SendButton(ctx, args[0]); err != nil {
			log.Error().Err(err).Msg("Failed to send button")
			return err
		}
		return nil
	},
}

var tvPowerOnCmd = &cobra.Command{
	Use:   "poweron",
	Short: "Power the TV on via Wake-on-LAN",
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, _ := cmd.Flags().GetBool("verify")

		controller := newTVController()
		defer controller.Close()

		if !verify {
			if err := controller.PowerOnViaNetwork(); err != nil {
				log.Error().Err(err).Msg("Power on failed")
				return err
			}
			fmt.Println("Wake packet sent")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		if err := controller.PowerOnViaSession(ctx, true); err != nil {
			log.Error().Err(err).Msg("Power on failed")
			return err
		}

		fmt.Println("TV is on and accepting commands")
		return nil
	},
}

var tvPowerOffCmd = &cobra.Command{
	Use:   "poweroff",
	Short: "Power the TV off",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller := newTVController()
		defer controller.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		if err := controller.PowerOff(ctx); err != nil {
			log.Error().Err(err).Msg("Power off failed")
			return err
		}

		fmt.Println("TV powered off")
		return nil
	},
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(out))
}

func init() {
	tvCmd.PersistentFlags().StringVarP(&tvHost, "host", "H", "", "TV host address")
	tvCmd.PersistentFlags().StringVarP(&tvMAC, "mac", "m", "", "TV MAC address for Wake-on-LAN")
	tvCmd.PersistentFlags().StringVarP(&tvStorePath, "store", "s", "store.json", "credential store path")
	tvCmd.PersistentFlags().BoolVarP(&tvDebug, "debug", "d", false, "Enable debug logging")

	tvCmd.MarkPersistentFlagRequired("host")

	tvPowerOnCmd.Flags().Bool("verify", false, "poll until the TV accepts commands")

	tvCmd.AddCommand(tvPairCmd)
	tvCmd.AddCommand(tvStatusCmd)
	tvCmd.AddCommand(tvAppsCmd)
	tvCmd.AddCommand(tvCurrentCmd)
	tvCmd.AddCommand(tvLaunchCmd)
	tvCmd.AddCommand(tvButtonCmd)
	tvCmd.AddCommand(tvPowerOnCmd)
	tvCmd.AddCommand(tvPowerOffCmd)
}
