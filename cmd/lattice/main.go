package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lattice: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lattice",
		Short: "Multi-agent chat sessions with per-thread agents and session models",
		Long: `lattice keeps chat threads per terminal session, routes each thread to a
registered agent backend, and lets every session pick its own model.

Run "lattice server" to serve the HTTP API, or "lattice chat" to open the
terminal chat. The chat connects to a running server for the same project,
otherwise it runs the backend in-process.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServerCmd(), newChatCmd(), newDoctorCmd(), newEncryptCmd())
	return root
}
