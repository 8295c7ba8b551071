package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/sockreplay/internal/config"
	"github.com/SmitUplenchwar2687/sockreplay/internal/mockserver"
	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/player"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/internal/transcript"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	replay         replayOptions
	host           string
	port           int
	pingInterval   time.Duration
	pingTimeout    time.Duration
	logLevel       string
	metricsAddr    string
	transcriptPath string
	captureDir     string
}

func newServeCmd() *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a recorded Socket.IO session to connecting clients",
		Long: `Starts a fake Socket.IO server that replays a recorded session.

Every client that connects gets its own copy of the conversation: the
connection-time burst, a response for each recorded client message (in
recorded order), the recorded disconnect, or the recorded handshake
rejection. Clients may open with polling and upgrade, or use websocket
directly.

Endpoints:
  GET/POST /socket.io/?EIO=4&transport=polling  Socket.IO v4
  WS       /socket.io/?EIO=4&transport=websocket
  GET      /metrics                             Prometheus (with --metrics-addr)`,
		Example: `  sockreplay serve --recording session.json
  sockreplay serve --recording session.json.zst --port 4000 --speed 10
  sockreplay serve --request-id 7f3a --store redis --redis-host cache:6379
  sockreplay serve --config sockreplay.yaml --metrics-addr :9100 --transcript transcript.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg.Log.Level, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, &o, logger)
		},
	}

	o.replay.addFlags(cmd)
	cmd.Flags().StringVar(&o.host, "host", "", "interface to listen on (empty = all)")
	cmd.Flags().IntVar(&o.port, "port", 3000, "Socket.IO port")
	cmd.Flags().DurationVar(&o.pingInterval, "ping-interval", player.DefaultPingInterval, "Engine.IO heartbeat interval")
	cmd.Flags().DurationVar(&o.pingTimeout, "ping-timeout", player.DefaultPingTimeout, "how long to wait for a pong before dropping the socket")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (empty = disabled)")
	cmd.Flags().StringVar(&o.transcriptPath, "transcript", "", "write what every socket received and was sent to this JSON file on shutdown")
	cmd.Flags().StringVar(&o.captureDir, "capture-dir", "", "write each served socket as a <sid>.json recording to this directory on shutdown")

	return cmd
}

func (o *serveOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := o.replay.resolve(cmd)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Server.Host = o.host
	}
	if changed("port") {
		cfg.Server.Port = o.port
	}
	if changed("ping-interval") {
		cfg.Replay.PingInterval = config.Duration(o.pingInterval)
	}
	if changed("ping-timeout") {
		cfg.Replay.PingTimeout = config.Duration(o.pingTimeout)
	}
	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg config.Config, o *serveOptions, logger *zerolog.Logger) error {
	metrics := observability.NewMetrics()

	var tr *transcript.Transcript
	if o.transcriptPath != "" || o.captureDir != "" {
		tr = transcript.New(nil)
	}

	opts := mockserver.Options{
		Addr:         cfg.Server.Addr(),
		Speed:        cfg.Replay.Speed,
		Transformers: o.replay.transformers(cfg),
		Logger:       logger,
		Metrics:      metrics,
		Transcript:   tr,
		PingInterval: cfg.Replay.PingInterval.Std(),
		PingTimeout:  cfg.Replay.PingTimeout.Std(),
	}
	if cfg.Replay.RequestID != "" {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
		opts.RequestID = cfg.Replay.RequestID
	} else {
		opts.RecordingPath = cfg.Replay.RecordingPath
	}

	m, err := mockserver.New(opts)
	if err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		return err
	}

	sc, _ := m.Scenario()
	fmt.Fprintf(cmd.OutOrStdout(), "Socket.IO: ws://%s%s (namespace %s, %d steps)\n", m.Addr(), player.Path, sc.Namespace, len(sc.Steps))

	errCh := make(chan error, 1)
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Metrics:   http://%s/metrics\n", cfg.Metrics.Addr)
	}

	var runErr error
	select {
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("metrics server stopped")
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	if err := m.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}

	if tr != nil {
		exportTranscript(tr, o, logger)
	}
	return runErr
}

// exportTranscript writes the transcript outputs. Failures are logged so a
// partial export never hides the shutdown result.
func exportTranscript(tr *transcript.Transcript, o *serveOptions, logger *zerolog.Logger) {
	if o.transcriptPath != "" {
		logger.Info().Int("entries", tr.Len()).Str("path", o.transcriptPath).Msg("exporting transcript")
		if err := tr.ExportFile(o.transcriptPath); err != nil {
			logger.Error().Err(err).Msg("exporting transcript")
		}
	}
	if o.captureDir == "" {
		return
	}
	if err := os.MkdirAll(o.captureDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("creating capture dir")
		return
	}
	for _, sid := range tr.SIDs() {
		path := filepath.Join(o.captureDir, sid+".json")
		if err := recording.WriteFile(path, tr.Recording(sid)); err != nil {
			logger.Error().Err(err).Str("sid", sid).Msg("writing capture")
		}
	}
}
