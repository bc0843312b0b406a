package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pongd",
		Short: "Real-time pong match and tournament server",
		Long: `pongd runs authoritative pong sessions over websockets: casual
matchmaking, direct invites and four-player single-elimination brackets.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
