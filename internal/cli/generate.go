package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/sockreplay/internal/config"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/pkg/generate"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample recordings and config",
		Long: `Generates sample data for testing and experimentation.

Use "generate recording" to create a synthetic Socket.IO recording.
Use "generate config" to create an example config file.`,
	}

	cmd.AddCommand(newGenerateRecordingCmd(), newGenerateConfigCmd())
	return cmd
}

func newGenerateRecordingCmd() *cobra.Command {
	var (
		output       string
		opts         = generate.DefaultOptions()
		noWelcome    bool
		noDisconnect bool
	)

	cmd := &cobra.Command{
		Use:   "recording",
		Short: "Generate a synthetic Socket.IO recording",
		Long: `Creates a recording with configurable traffic. Every client message is
answered by a "<event>:ok" server event after a random latency.

Patterns:
  steady    Evenly spaced client messages
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing message rate

The output format follows the file extension: .json, .yaml, .cbor,
optionally compressed with .gz or .zst.`,
		Example: `  sockreplay generate recording --output session.json --count 50
  sockreplay generate recording --output burst.yaml --pattern burst --duration 10m
  sockreplay generate recording --output chat.json.zst --namespace /chat --events join,say,leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Welcome = !noWelcome
			opts.Disconnect = !noDisconnect

			rec, err := generate.Recording(opts)
			if err != nil {
				return err
			}
			if err := recording.WriteFile(output, rec); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated recording %s to %s\n", rec.RequestID, output)
			fmt.Fprintf(out, "  Client messages: %d\n", rec.Count(recording.ClientToServer))
			fmt.Fprintf(out, "  Server messages: %d\n", rec.Count(recording.ServerToClient))
			fmt.Fprintf(out, "  Duration:        %s\n", opts.Duration)
			fmt.Fprintf(out, "  Pattern:         %s\n", opts.Pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "recording.json", "output file path")
	cmd.Flags().IntVar(&opts.Count, "count", opts.Count, "number of client messages")
	cmd.Flags().IntVar(&opts.Users, "users", opts.Users, "number of distinct user ids in payloads")
	cmd.Flags().DurationVar(&opts.Duration, "duration", opts.Duration, "time span of the client messages")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", opts.Pattern, "traffic pattern (steady, burst, ramp)")
	cmd.Flags().DurationVar(&opts.Latency, "latency", opts.Latency, "maximum delay before each server reply")
	cmd.Flags().StringSliceVar(&opts.Events, "events", nil, "client event names to pick from (comma-separated)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "namespace to record the connection on")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id (random when empty)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().BoolVar(&noWelcome, "no-welcome", false, "omit the connection-time welcome event")
	cmd.Flags().BoolVar(&noDisconnect, "no-disconnect", false, "omit the recorded disconnect")

	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate an example config file",
		Example: `  sockreplay generate config --output sockreplay.json
  sockreplay generate config --output sockreplay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "sockreplay.json", "output file path")
	return cmd
}
