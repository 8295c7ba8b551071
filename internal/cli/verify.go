package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/sockreplay/internal/conformance"
	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/player"
)

func newVerifyCmd() *cobra.Command {
	var (
		o          replayOptions
		addr       string
		timeout    time.Duration
		logLevel   string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Play the client side of a recording and check the server's answers",
		Long: `Connects as a Socket.IO client, sends every recorded client message in
order and checks that each recorded server event arrives.

Without --addr, an in-process replay server is started on a random local
port, which checks that the recording replays cleanly. With --addr, the
recording is checked against any running Socket.IO server.

Use --speed to shorten recorded delays when verifying a local replay.`,
		Example: `  sockreplay verify --recording session.json --speed 100
  sockreplay verify --recording session.json --addr localhost:3000 --timeout 1m
  sockreplay verify --recording session.json --speed 50 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			if !observability.ValidLevel(logLevel) {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			logger := observability.NewLogger(logLevel, cmd.ErrOrStderr())
			ctx := cmd.Context()

			sc, err := o.loadScenario(ctx, cfg)
			if err != nil {
				return err
			}

			target := addr
			if target == "" {
				p, err := player.New(player.Options{Addr: "127.0.0.1:0", Logger: logger})
				if err != nil {
					return err
				}
				if err := p.Start(ctx, sc); err != nil {
					return err
				}
				defer p.Close()
				target = p.Addr()
			}

			report, err := conformance.Run(ctx, target, sc, conformance.Options{Timeout: timeout, Logger: logger})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}
			if !report.OK() {
				return fmt.Errorf("verification failed: %d missing, %d unexpected", len(report.Missing), len(report.Unexpected))
			}
			return nil
		},
	}

	o.addFlags(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "verify a running server at host:port instead of a local replay")
	cmd.Flags().DurationVar(&timeout, "timeout", conformance.DefaultTimeout, "give up waiting for server events after this long")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the report as JSON")

	return cmd
}

func printReport(w io.Writer, r *conformance.Report) {
	status := "PASS"
	if !r.OK() {
		status = "FAIL"
	}

	fmt.Fprintf(w, "[%s] sid=%s namespace=%s\n", status, r.SID, r.Namespace)
	if r.ExpectReject || r.Rejected {
		fmt.Fprintf(w, "  Handshake rejected: %v (expected %v) %s\n", r.Rejected, r.ExpectReject, r.RejectMessage)
		return
	}
	fmt.Fprintf(w, "  Client messages sent:  %d\n", r.Sent)
	fmt.Fprintf(w, "  Server events:         %d/%d received\n", r.Expected-len(r.Missing), r.Expected)
	if r.ExpectDisconnect {
		fmt.Fprintf(w, "  Disconnected:          %v\n", r.Disconnected)
	}
	fmt.Fprintf(w, "  Wall time:             %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Missing) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Missing:")
		for _, m := range r.Missing {
			fmt.Fprintf(w, "    %s %s\n", m.Event, formatArgs(m.Args))
		}
	}
	if len(r.Unexpected) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Unexpected:")
		for _, u := range r.Unexpected {
			fmt.Fprintf(w, "    %s %s\n", u.Event, formatArgs(u.Args))
		}
	}
	if !r.OK() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
