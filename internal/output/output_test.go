package output

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/config"
)

type recordSink struct {
	mu   sync.Mutex
	name string
	msgs []Message
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) Deliver(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordSink) faces() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Faces
	}
	return out
}

func TestBroadcaster_FansOutInOrder(t *testing.T) {
	a := &recordSink{name: "a"}
	b := &recordSink{name: "b"}
	bc := NewBroadcaster(a, nil, b)

	for _, n := range []int{0, 1, 0} {
		bc.Publish(Message{Faces: n})
	}

	for _, s := range []*recordSink{a, b} {
		got := s.faces()
		if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 0 {
			t.Errorf("sink %s got %v", s.name, got)
		}
	}
	if names := bc.Sinks(); len(names) != 2 {
		t.Errorf("nil sink should be ignored, got %v", names)
	}
}

func TestBroadcaster_NoSinks(t *testing.T) {
	NewBroadcaster().Publish(Message{Faces: 3})
}

func TestMessage_JSONShape(t *testing.T) {
	msg := Message{
		Image:      "aGVsbG8=",
		Faces:      1,
		JPEG:       []byte("hello"),
		Detections: []image.Rectangle{image.Rect(1, 2, 3, 4)},
		Source:     "rtsp://cam",
		Seq:        7,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 || fields["image"] != "aGVsbG8=" || fields["faces"] != float64(1) {
		t.Errorf("viewer payload must be exactly {image, faces}, got %s", data)
	}
}

func TestNewDetectionEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := NewDetectionEvent(Message{
		Faces:      1,
		Detections: []image.Rectangle{image.Rect(10, 20, 40, 60)},
		Source:     "camA",
		Seq:        3,
		CapturedAt: at,
	})

	if ev.Source != "camA" || ev.Seq != 3 || !ev.CapturedAt.Equal(at) {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(ev.Boxes) != 1 || ev.Boxes[0] != (Box{X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Errorf("unexpected boxes %+v", ev.Boxes)
	}

	empty := NewDetectionEvent(Message{})
	data, _ := empty.JSON()
	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if boxes, ok := decoded["boxes"].([]interface{}); !ok || len(boxes) != 0 {
		t.Errorf("boxes should encode as an empty array, got %s", data)
	}
}

func TestAsyncSink_DropsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []uint64

	s := NewAsyncSink("slow", func(ctx context.Context, msg Message) error {
		started <- struct{}{}
		<-release
		mu.Lock()
		got = append(got, msg.Seq)
		mu.Unlock()
		return nil
	}, nil)
	defer s.Close()

	s.Deliver(Message{Seq: 1})
	<-started // worker is now blocked on seq 1

	done := make(chan struct{})
	go func() {
		s.Deliver(Message{Seq: 2}) // fills the slot
		s.Deliver(Message{Seq: 3}) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a busy publisher")
	}

	close(release)
	<-started

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 publishes, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected publish order %v", got)
	}
	if s.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", s.Dropped())
	}
}

func TestAsyncSink_CountsFailures(t *testing.T) {
	calls := make(chan struct{}, 1)
	s := NewAsyncSink("broken", func(ctx context.Context, msg Message) error {
		defer func() { calls <- struct{}{} }()
		return errors.New("unreachable")
	}, nil)

	s.Deliver(Message{})
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("publish not called")
	}
	s.Close()
	s.Close()

	if s.Failed() != 1 {
		t.Errorf("failed = %d, want 1", s.Failed())
	}
}

func TestMJPEGSink_SkipsEmpty(t *testing.T) {
	m := NewMJPEGSink()
	m.Deliver(Message{})
	m.Deliver(Message{JPEG: []byte{0xFF, 0xD8, 0xFF, 0xD9}})
	if m.Frames() != 1 {
		t.Errorf("frames = %d, want 1", m.Frames())
	}
}

func TestMQTTSink_NotConnected(t *testing.T) {
	s := NewMQTTSink(config.MQTTConfig{Broker: "localhost:1883", Topic: "camwatch/test"})
	if err := s.Publish(context.Background(), Message{}); err == nil {
		t.Fatal("expected error before Connect")
	}
	if _, errs := s.Stats(); errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
	if s.cfg.ClientID == "" {
		t.Error("client id should be generated")
	}
	s.Close()
}

func TestBrokerURL(t *testing.T) {
	if got := BrokerURL("localhost:1883"); got != "tcp://localhost:1883" {
		t.Errorf("got %s", got)
	}
	if got := BrokerURL("ssl://broker:8883"); got != "ssl://broker:8883" {
		t.Errorf("got %s", got)
	}
}
