package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "meet",
	Short: "Join peer-to-peer video meetings from the terminal",
	Long: `Meet is a command-line client for room-based WebRTC meetings.
It connects to a signaling relay, discovers the other participants in a
room, and negotiates a direct connection with each of them.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Interrupt handling lives in the commands themselves so their deferred
// cleanup always runs.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
