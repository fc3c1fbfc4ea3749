package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/capture"
	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/frame"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
	"github.com/bryanchriswhite/CamWatch/internal/output"
	"github.com/rs/zerolog"
)

// Result is what one loop iteration did
type Result int

const (
	ResultExit Result = iota
	ResultIdle
	ResultOpened
	ResultOpenFailed
	ResultReadMiss
	ResultReadBroken
	ResultPublished
	ResultDropped
)

var resultNames = map[Result]string{
	ResultExit:       "exit",
	ResultIdle:       "idle",
	ResultOpened:     "opened",
	ResultOpenFailed: "open_failed",
	ResultReadMiss:   "read_miss",
	ResultReadBroken: "read_broken",
	ResultPublished:  "published",
	ResultDropped:    "dropped",
}

func (r Result) String() string {
	return resultNames[r]
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration)

// Deps are the collaborators a Loop drives
type Deps struct {
	State       *State
	Opener      capture.Opener
	Transform   *frame.Transform
	Encoder     *frame.Encoder
	Broadcaster *output.Broadcaster
	Metrics     *metrics.Metrics
}

// Loop is the acquisition driver. Step and Run must only be called from one
// goroutine; Health may be called from anywhere.
type Loop struct {
	state       *State
	conn        *Connection
	transform   *frame.Transform
	encoder     *frame.Encoder
	broadcaster *output.Broadcaster
	metrics     *metrics.Metrics
	cfg         config.StreamConfig
	log         zerolog.Logger

	sleep SleepFunc
	now   func() time.Time

	seq       uint64
	published uint64
	lastFrame time.Time

	healthMu sync.RWMutex
	health   Health
}

// NewLoop wires a loop; cfg supplies the idle, pacing, backoff and miss
// intervals
func NewLoop(deps Deps, cfg config.StreamConfig) *Loop {
	transform := deps.Transform
	if transform == nil {
		transform = frame.NewTransform(cfg.MaxWidth, nil, nil)
	}
	encoder := deps.Encoder
	if encoder == nil {
		encoder = frame.NewEncoder(frame.DefaultQuality)
	}
	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = output.NewBroadcaster()
	}

	l := &Loop{
		state:       deps.State,
		conn:        NewConnection(deps.Opener),
		transform:   transform,
		encoder:     encoder,
		broadcaster: broadcaster,
		metrics:     deps.Metrics,
		cfg:         cfg,
		log:         *logger.WithComponent("stream"),
		sleep:       sleepContext,
		now:         time.Now,
	}
	l.recordHealth()
	return l
}

// SetSleep replaces the wait between iterations
func (l *Loop) SetSleep(fn SleepFunc) {
	l.sleep = fn
}

// Connection exposes the loop's connection for inspection
func (l *Loop) Connection() *Connection {
	return l.conn
}

// Run iterates until the state stops running or ctx is cancelled
func (l *Loop) Run(ctx context.Context) {
	l.log.Info().Msg("Acquisition loop started")
	for l.Step(ctx) != ResultExit {
	}
	l.log.Info().Uint64("frames", l.published).Msg("Acquisition loop stopped")
}

// Step runs one iteration, including its trailing sleep
func (l *Loop) Step(ctx context.Context) Result {
	result, wait := l.step(ctx)
	l.recordHealth()
	if wait > 0 {
		l.sleep(ctx, wait)
	}
	return result
}

func (l *Loop) step(ctx context.Context) (Result, time.Duration) {
	address, running := l.state.Read()
	if !running || ctx.Err() != nil {
		l.conn.Release()
		return ResultExit, 0
	}

	if address == "" {
		if l.conn.Address() != "" {
			l.log.Info().Str("address", l.conn.Address()).Msg("Source cleared, releasing connection")
			l.conn.Release()
		}
		return ResultIdle, l.cfg.IdleInterval
	}

	if address != l.conn.Address() {
		if prev := l.conn.Address(); prev != "" {
			l.log.Info().Str("from", prev).Str("to", address).Msg("Source changed")
		}
		l.conn.Switch(address)
	}

	if !l.conn.IsOpen() {
		if err := l.conn.Open(ctx); err != nil {
			l.metrics.IncOpenFailures()
			l.log.Warn().
				Err(err).
				Str("address", address).
				Uint64("attempt", l.conn.Stats().ConsecutiveFailures).
				Dur("backoff", l.cfg.ReconnectBackoff).
				Msg("Failed to open source")
			return ResultOpenFailed, l.cfg.ReconnectBackoff
		}
		l.log.Info().Str("address", address).Msg("Source opened")
		return ResultOpened, 0
	}

	img, err := l.conn.Read()
	if errors.Is(err, capture.ErrNoFrame) {
		l.metrics.IncReadMisses()
		l.log.Debug().Str("address", address).Msg("No frame available")
		return ResultReadMiss, l.cfg.ReadMissPause
	}
	if err != nil {
		l.metrics.IncReconnects()
		l.log.Warn().
			Err(err).
			Str("address", address).
			Dur("backoff", l.cfg.ReconnectBackoff).
			Msg("Source connection broken, reconnecting")
		return ResultReadBroken, l.cfg.ReconnectBackoff
	}

	annotated, detections := l.transform.Apply(img)
	msg, err := l.encoder.Encode(annotated, detections)
	if err != nil {
		l.metrics.IncFramesDropped()
		l.log.Warn().Err(err).Str("address", address).Msg("Dropping frame")
		return ResultDropped, l.cfg.PaceInterval
	}

	l.seq++
	l.lastFrame = l.now()
	msg.Source = address
	msg.Seq = l.seq
	msg.CapturedAt = l.lastFrame

	l.broadcaster.Publish(msg)
	l.published++
	l.metrics.IncFramesPublished(msg.Faces)

	return ResultPublished, l.cfg.PaceInterval
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
