package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Service owns the loop goroutine. Start is idempotent so re-running setup
// code never spawns a second loop.
type Service struct {
	loop  *Loop
	state *State

	startOnce sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService wraps a loop
func NewService(loop *Loop) *Service {
	return &Service{
		loop:  loop,
		state: loop.state,
		done:  make(chan struct{}),
	}
}

// State returns the shared state handlers mutate
func (s *Service) State() *State {
	return s.state
}

// Health returns the loop's latest health snapshot
func (s *Service) Health() Health {
	return s.loop.Health()
}

// Start launches the loop goroutine once
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.started.Store(true)

		go func() {
			defer close(s.done)
			s.loop.Run(ctx)
		}()
	})
}

// Done is closed when the loop has exited
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Stop asks the loop to exit, cancels any sleep or open in progress and
// waits for it until ctx expires
func (s *Service) Stop(ctx context.Context) error {
	s.state.Stop()
	if !s.started.Load() {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
