package mockserver

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/sockreplay/internal/clock"
	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/player"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
	"github.com/SmitUplenchwar2687/sockreplay/internal/transcript"
)

// Options configures New. Exactly one of RecordingPath, Data or Store must
// be set.
type Options struct {
	RecordingPath string
	Data          any
	Store         recording.Store
	RequestID     string // with Store

	Port int
	Addr string // overrides Port

	// Speed divides recorded gaps. Zero means 1.
	Speed        float64
	Transformers []scenario.Transformer

	Clock        clock.Clock
	Logger       *zerolog.Logger
	Metrics      *observability.Metrics
	Transcript   *transcript.Transcript
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// New builds a MockServer backed by the default builder and player.
// Argument errors are reported here, before anything is loaded.
func New(opts Options) (*MockServer, error) {
	src, err := newSource(opts)
	if err != nil {
		return nil, err
	}
	if opts.Addr == "" && opts.Port <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgs, "port must be positive, got %d", opts.Port)
	}
	if opts.Speed < 0 || math.IsNaN(opts.Speed) || math.IsInf(opts.Speed, 0) {
		return nil, errors.Wrapf(ErrInvalidArgs, "speed must be positive, got %v", opts.Speed)
	}
	speed := opts.Speed
	if speed == 0 {
		speed = 1
	}

	p, err := player.New(player.Options{
		Addr:         opts.Addr,
		Port:         opts.Port,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		Transcript:   opts.Transcript,
		PingInterval: opts.PingInterval,
		PingTimeout:  opts.PingTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgs, err.Error())
	}

	return NewMockServer(Config{
		Source:       src,
		Builder:      scenario.NewBuilder(1),
		Player:       p,
		BuildOptions: scenario.Options{Speed: speed},
		Transformers: opts.Transformers,
	})
}

func newSource(opts Options) (recording.Source, error) {
	n := 0
	if opts.RecordingPath != "" {
		n++
	}
	if opts.Data != nil {
		n++
	}
	if opts.Store != nil {
		n++
	}
	if n != 1 {
		return nil, errors.Wrap(ErrInvalidArgs, "exactly one of recording path, data or store is required")
	}

	var (
		src recording.Source
		err error
	)
	switch {
	case opts.RecordingPath != "":
		src, err = recording.NewFileSource(opts.RecordingPath)
	case opts.Data != nil:
		src, err = recording.NewDataSource(opts.Data)
	default:
		src, err = recording.NewStoreSource(opts.Store, opts.RequestID)
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgs, err.Error())
	}
	return src, nil
}
