package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root sockreplay command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sockreplay",
		Short: "Replay recorded Socket.IO sessions as a fake server",
		Long: `sockreplay turns a recorded Socket.IO session into a fake server, so
end-to-end tests can run against the recorded backend behavior without
the real backend. Speed up recorded delays, inspect the replay plan,
and check a recording against a live server.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newInspectCmd(),
		newVerifyCmd(),
		newGenerateCmd(),
		newStoreCmd(),
	)

	return root
}
