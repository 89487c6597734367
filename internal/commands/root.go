package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/webdrop/internal/ui"
	"github.com/BioHazard786/webdrop/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "webdrop",
	Short: "Send files directly to a browser or another terminal over WebRTC",
	Long: `webdrop pairs two devices through a short room code and streams files
between them over a WebRTC data channel. The relay only brokers the pairing;
file contents never pass through it.

The receiver creates a room and shares its code or link. The sender joins
with that code from a terminal or the web app and picks the files.`,
	Version: version.Version,
}

// Execute runs the command line. Interrupts cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Cancelled")
			os.Exit(130)
		}
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
