// Package output fans encoded frames out to viewers and event consumers.
// Every sink's Deliver must return without waiting on a consumer.
package output

import (
	"encoding/json"
	"image"
	"sync"
	"time"
)

// Message is one processed frame. Only Image and Faces are sent to viewers;
// the rest is metadata for secondary sinks.
type Message struct {
	Image string `json:"image"`
	Faces int    `json:"faces"`

	JPEG       []byte            `json:"-"`
	Detections []image.Rectangle `json:"-"`
	Source     string            `json:"-"`
	Seq        uint64            `json:"-"`
	CapturedAt time.Time         `json:"-"`
}

// Box is a detection in x/y/width/height form
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionEvent is the frame summary published to brokers
type DetectionEvent struct {
	Source     string    `json:"source"`
	Faces      int       `json:"faces"`
	Boxes      []Box     `json:"boxes"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewDetectionEvent summarises a message without its image payload
func NewDetectionEvent(msg Message) DetectionEvent {
	boxes := make([]Box, 0, len(msg.Detections))
	for _, r := range msg.Detections {
		boxes = append(boxes, Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return DetectionEvent{
		Source:     msg.Source,
		Faces:      msg.Faces,
		Boxes:      boxes,
		Seq:        msg.Seq,
		CapturedAt: msg.CapturedAt,
	}
}

// JSON encodes the event
func (e DetectionEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives every published message
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Deliver hands over a message; it must not block on consumers
	Deliver(msg Message)
}

// Broadcaster delivers each message to the current set of sinks. It keeps no
// viewer identities; those belong to the sinks.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBroadcaster creates a broadcaster over the given sinks
func NewBroadcaster(sinks ...Sink) *Broadcaster {
	b := &Broadcaster{}
	for _, s := range sinks {
		b.Add(s)
	}
	return b
}

// Add registers a sink; nil is ignored
func (b *Broadcaster) Add(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Sinks returns the registered sink names
func (b *Broadcaster) Sinks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.sinks))
	for _, s := range b.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish hands msg to every sink. With no sinks it does nothing.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Deliver(msg)
	}
}
