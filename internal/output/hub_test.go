package output

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func waitForViewers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d viewers, have %d", n, h.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversJSONFrames(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForViewers(t, hub, 1)

	hub.Deliver(Message{Image: "abc", Faces: 2, JPEG: []byte("raw"), Source: "camA"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	if got["image"] != "abc" || got["faces"] != float64(2) || len(got) != 2 {
		t.Errorf("unexpected message %s", data)
	}
}

func TestHub_SlowViewerDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	// Never reads: its queue fills and frames are dropped for it only
	conn := dialHub(t, srv)
	defer conn.Close()
	waitForViewers(t, hub, 1)

	payload := strings.Repeat("x", 256*1024)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Deliver(Message{Image: payload, Faces: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Deliver blocked on a viewer that is not reading")
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForViewers(t, hub, 1)

	conn.Close()
	waitForViewers(t, hub, 0)

	hub.Deliver(Message{Faces: 1}) // zero viewers is a no-op
	hub.Close()
}

func TestHub_CloseDisconnectsViewers(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForViewers(t, hub, 1)

	hub.Close()
	if hub.Count() != 0 {
		t.Errorf("expected no viewers after Close, got %d", hub.Count())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
}
