package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "z21d: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "z21d",
		Short: "Z21 LAN protocol command station",
		Long: `z21d speaks the Z21 LAN protocol over UDP. Throttles and apps connect to
it as they would to a Z21 command station; an optional admin HTTP server
exposes sessions, track power, metrics and a live frame monitor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}
