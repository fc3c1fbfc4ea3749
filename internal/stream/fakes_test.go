package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/capture"
	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/detect"
	"github.com/bryanchriswhite/CamWatch/internal/frame"
	"github.com/bryanchriswhite/CamWatch/internal/output"
)

var errBroken = errors.New("connection reset")

// readStep is one scripted Read outcome: a frame, a miss or a failure
type readStep struct {
	img image.Image
	err error
}

func frameStep() readStep { return readStep{img: image.NewRGBA(image.Rect(0, 0, 16, 12))} }
func missStep() readStep  { return readStep{err: capture.ErrNoFrame} }
func brokenStep() readStep {
	return readStep{err: errBroken}
}

type fakeCapture struct {
	mu      sync.Mutex
	address string
	steps   []readStep
	closes  int
}

func (c *fakeCapture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.steps) == 0 {
		return nil, capture.ErrNoFrame
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s.img, s.err
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fakeOpener fails the first failures[address] opens for an address, then
// hands out captures scripted by reads[address]
type fakeOpener struct {
	mu       sync.Mutex
	failures map[string]int
	reads    map[string][]readStep
	attempts []string
	captures []*fakeCapture
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		failures: map[string]int{},
		reads:    map[string][]readStep{},
	}
}

func (o *fakeOpener) Name() string { return "fake" }

func (o *fakeOpener) Open(ctx context.Context, address string) (capture.Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.attempts = append(o.attempts, address)
	if o.failures[address] > 0 {
		o.failures[address]--
		return nil, fmt.Errorf("dial %s: connection refused", address)
	}

	steps := append([]readStep(nil), o.reads[address]...)
	c := &fakeCapture{address: address, steps: steps}
	o.captures = append(o.captures, c)
	return c, nil
}

func (o *fakeOpener) openedAddresses() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.captures))
	for i, c := range o.captures {
		out[i] = c.address
	}
	return out
}

func (o *fakeOpener) allCaptures() []*fakeCapture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeCapture(nil), o.captures...)
}

type recordSink struct {
	mu   sync.Mutex
	msgs []output.Message
}

func (r *recordSink) Name() string { return "record" }

func (r *recordSink) Deliver(msg output.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordSink) messages() []output.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]output.Message(nil), r.msgs...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sleeps {
		if v == d {
			n++
		}
	}
	return n
}

var testStreamConfig = config.StreamConfig{
	IdleInterval:     500 * time.Millisecond,
	PaceInterval:     30 * time.Millisecond,
	ReconnectBackoff: time.Second,
	ReadMissPause:    250 * time.Millisecond,
	MaxWidth:         800,
}

type harness struct {
	state  *State
	opener *fakeOpener
	sink   *recordSink
	sleeps *sleepRecorder
	loop   *Loop
}

func newHarness(address string, detector detect.Detector) *harness {
	h := &harness{
		state:  NewState(address),
		opener: newFakeOpener(),
		sink:   &recordSink{},
		sleeps: &sleepRecorder{},
	}
	h.loop = NewLoop(Deps{
		State:       h.state,
		Opener:      h.opener,
		Transform:   frame.NewTransform(testStreamConfig.MaxWidth, detector, nil),
		Encoder:     frame.NewEncoder(90),
		Broadcaster: output.NewBroadcaster(h.sink),
	}, testStreamConfig)
	h.loop.SetSleep(h.sleeps.sleep)
	return h
}
