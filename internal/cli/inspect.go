package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
)

func newInspectCmd() *cobra.Command {
	var (
		o          replayOptions
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the scenario a recording replays as",
		Long: `Builds the replay scenario from a recording without serving it.

The output lists the connection-time burst, every step (the client
message it waits for and the server events it answers with, with their
delays after --speed is applied), the scheduled disconnect and any
handshake rejection.`,
		Example: `  sockreplay inspect --recording session.json
  sockreplay inspect --recording session.yaml --speed 10 --json
  sockreplay inspect --request-id 7f3a --store redis --exclude typing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			sc, err := o.loadScenario(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sc)
			}
			printScenario(out, sc, cfg.Replay.Speed)
			return nil
		},
	}

	o.addFlags(cmd)
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the scenario as JSON")

	return cmd
}

func printScenario(w io.Writer, sc scenario.Scenario, speed float64) {
	fmt.Fprintf(w, "Namespace:   %s\n", sc.Namespace)
	fmt.Fprintf(w, "Speed:       %gx\n", speed)
	fmt.Fprintf(w, "On connect:  %d events\n", len(sc.OnConnect.Responses))
	fmt.Fprintf(w, "Steps:       %d (%d server events)\n", len(sc.Steps), sc.ResponseCount()-len(sc.OnConnect.Responses))
	if sc.DisconnectAfterMs != nil {
		fmt.Fprintf(w, "Disconnect:  after %dms\n", *sc.DisconnectAfterMs)
	} else {
		fmt.Fprintln(w, "Disconnect:  never")
	}
	if rej := sc.HandshakeReject; rej != nil {
		fmt.Fprintf(w, "Reject:      %q after %gms\n", rej.Message, rej.AfterMs)
	}

	if len(sc.OnConnect.Responses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  on connect")
		printResponses(w, sc.OnConnect.Responses)
	}
	for i, step := range sc.Steps {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  step %d  <- %s %s\n", i+1, step.Expect.Event, formatArgs(step.Expect.Args))
		printResponses(w, step.Responses)
	}
	if events := sc.Events(); len(events) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Client events: %s\n", strings.Join(events, ", "))
	}
}

func printResponses(w io.Writer, rs []scenario.Response) {
	for _, r := range rs {
		fmt.Fprintf(w, "    +%-6s -> %s %s\n", fmt.Sprintf("%dms", r.DelayMs), r.Event, formatArgs(r.Args))
	}
}

func formatArgs(args []any) string {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	const limit = 80
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
