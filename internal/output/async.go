package output

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
)

// PublishFunc sends one message to a remote system and may block
type PublishFunc func(ctx context.Context, msg Message) error

// AsyncSink moves a blocking publisher off the acquisition goroutine. It
// holds at most one pending message; a message arriving while the slot is
// full is dropped.
type AsyncSink struct {
	name    string
	publish PublishFunc
	metrics *metrics.Metrics

	queue   chan Message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64

	closeOnce sync.Once
}

// NewAsyncSink starts the worker goroutine for publish
func NewAsyncSink(name string, publish PublishFunc, m *metrics.Metrics) *AsyncSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &AsyncSink{
		name:    name,
		publish: publish,
		metrics: m,
		queue:   make(chan Message, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Name returns the wrapped publisher's name
func (s *AsyncSink) Name() string {
	return s.name
}

// Deliver queues msg or drops it when the worker is still busy
func (s *AsyncSink) Deliver(msg Message) {
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
		s.metrics.IncSinkDrops(s.name)
	}
}

// Dropped returns how many messages were discarded
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Failed returns how many publishes returned an error
func (s *AsyncSink) Failed() uint64 {
	return s.failed.Load()
}

func (s *AsyncSink) run() {
	defer close(s.done)
	log := logger.WithComponent("output")

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.publish(s.ctx, msg); err != nil {
				// Log the first failure and then every 100th to keep outages quiet
				if n := s.failed.Add(1); n == 1 || n%100 == 0 {
					log.Warn().Err(err).Str("sink", s.name).Uint64("failures", n).Msg("Publish failed")
				}
			}
		}
	}
}

// Close stops the worker and waits for it to exit
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
