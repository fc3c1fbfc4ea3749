package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/capture"
	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
	"github.com/bryanchriswhite/CamWatch/internal/output"
	"github.com/bryanchriswhite/CamWatch/internal/store"
	"github.com/bryanchriswhite/CamWatch/internal/stream"
	"github.com/gorilla/websocket"
)

type fakeHistory struct {
	mu      sync.Mutex
	records []store.SourceEvent
	err     error
	limit   int
}

func (f *fakeHistory) Record(ctx context.Context, action, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, store.SourceEvent{Action: action, Address: address})
	return f.err
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]store.SourceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fixedHealth stream.Health

func (f fixedHealth) Health() stream.Health { return stream.Health(f) }

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	if opts.State == nil {
		opts.State = stream.NewState("")
	}
	return NewServer(opts).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestSetSource(t *testing.T) {
	state := stream.NewState("")
	hist := &fakeHistory{}
	h := newTestServer(t, Options{State: state, History: hist})

	rec, body := do(t, h, "POST", "/api/stream/source", `{"address":"rtsp://cam/1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["ok"] != true || body["address"] != "rtsp://cam/1" {
		t.Errorf("unexpected body %v", body)
	}
	if state.Address() != "rtsp://cam/1" {
		t.Errorf("state not updated: %q", state.Address())
	}
	if len(hist.records) != 1 || hist.records[0].Action != store.ActionSet {
		t.Errorf("history not recorded: %+v", hist.records)
	}
}

func TestSetSource_Rejected(t *testing.T) {
	cases := map[string]string{
		"empty address":   `{"address":""}`,
		"missing address": `{}`,
		"blank address":   `{"address":"   "}`,
		"invalid json":    `not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			state := stream.NewState("rtsp://keep")
			hist := &fakeHistory{}
			h := newTestServer(t, Options{State: state, History: hist})

			rec, out := do(t, h, "POST", "/api/stream/source", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if out["ok"] != false || out["error"] == nil {
				t.Errorf("unexpected body %v", out)
			}
			if state.Address() != "rtsp://keep" {
				t.Error("rejected request must not touch state")
			}
			if len(hist.records) != 0 {
				t.Error("rejected request must not be recorded")
			}
		})
	}
}

func TestLegacySetStream(t *testing.T) {
	state := stream.NewState("")
	h := newTestServer(t, Options{State: state})

	rec, body := do(t, h, "POST", "/set_stream", `{"rtsp_url":"rtsp://cam/2"}`)
	if rec.Code != http.StatusOK || body["rtsp_url"] != "rtsp://cam/2" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if state.Address() != "rtsp://cam/2" {
		t.Errorf("state not updated")
	}

	rec, body = do(t, h, "POST", "/set_stream", `{}`)
	if rec.Code != http.StatusBadRequest || body["error"] != "rtsp_url required" {
		t.Errorf("unexpected response %d %v", rec.Code, body)
	}

	_, body = do(t, h, "GET", "/status", "")
	if body["rtsp_url"] != "rtsp://cam/2" {
		t.Errorf("unexpected legacy status %v", body)
	}
}

func TestStopSource(t *testing.T) {
	state := stream.NewState("rtsp://cam/1")
	hist := &fakeHistory{}
	h := newTestServer(t, Options{State: state, History: hist})

	for _, path := range []string{"/api/stream/stop", "/stop_stream"} {
		rec, body := do(t, h, "POST", path, "")
		if rec.Code != http.StatusOK || body["ok"] != true {
			t.Errorf("%s: unexpected response %d %v", path, rec.Code, body)
		}
	}

	address, running := state.Read()
	if address != "" || !running {
		t.Errorf("stop-source should clear the address only, got (%q, %v)", address, running)
	}
	if hist.records[0].Action != store.ActionStop || hist.records[0].Address != "rtsp://cam/1" {
		t.Errorf("stop should record the address it stopped: %+v", hist.records[0])
	}

	rec, body := do(t, h, "GET", "/api/stream/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if v, ok := body["address"]; !ok || v != nil {
		t.Errorf("expected null address, got %v", body)
	}
}

func TestHistoryFailureDoesNotFailControl(t *testing.T) {
	state := stream.NewState("")
	h := newTestServer(t, Options{State: state, History: &fakeHistory{err: errors.New("db down")}})

	rec, _ := do(t, h, "POST", "/api/stream/source", `{"address":"camA"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 despite history failure, got %d", rec.Code)
	}
	if state.Address() != "camA" {
		t.Error("state must still change")
	}
}

func TestStreamHealth(t *testing.T) {
	h := newTestServer(t, Options{Health: fixedHealth{State: "failed", Address: "camA", ConsecutiveFailures: 3}})
	rec, body := do(t, h, "GET", "/api/stream/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["state"] != "failed" || body["consecutive_failures"] != float64(3) {
		t.Errorf("unexpected health %v", body)
	}

	rec, _ = do(t, newTestServer(t, Options{}), "GET", "/api/stream/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a loop, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{records: []store.SourceEvent{{ID: 1, Address: "camA", Action: "set"}}}
	h := newTestServer(t, Options{History: hist})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/stream/history?limit=5000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events []store.SourceEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil || len(events) != 1 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if hist.limit != maxHistoryLimit {
		t.Errorf("limit should be capped, got %d", hist.limit)
	}

	rec, _ = do(t, h, "GET", "/api/stream/history?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec, _ = do(t, newTestServer(t, Options{}), "GET", "/api/stream/history", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a database, got %d", rec.Code)
	}
}

func TestCORSAndHealth(t *testing.T) {
	h := newTestServer(t, Options{})

	rec, _ := do(t, h, "OPTIONS", "/api/stream/source", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}

	rec, body := do(t, h, "GET", "/api/health", "")
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("unexpected health %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, "GET", "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/stream/ws") {
		t.Error("index should serve the viewer page")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	h := newTestServer(t, Options{Metrics: m})

	do(t, h, "POST", "/api/stream/source", `{}`)
	rec, _ := do(t, h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "camwatch_http_errors_total 1") {
		t.Errorf("expected the 400 to be counted:\n%s", rec.Body.String())
	}
}

func TestConfigEndpoint(t *testing.T) {
	mgr, err := config.NewManager(t.TempDir() + "/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, Options{Config: mgr})

	rec, body := do(t, h, "GET", "/api/config", "")
	if rec.Code != http.StatusOK || body["server_port"] != float64(5000) {
		t.Errorf("unexpected config response %d %v", rec.Code, body)
	}
}

// steadyOpener hands out captures that always have a frame ready
type steadyOpener struct{}

func (steadyOpener) Name() string { return "steady" }

func (steadyOpener) Open(ctx context.Context, address string) (capture.Capture, error) {
	return steadyCapture{}, nil
}

type steadyCapture struct{}

func (steadyCapture) Read() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (steadyCapture) Close() error { return nil }

func TestEndToEnd_WebsocketViewerAndControl(t *testing.T) {
	state := stream.NewState("")
	hub := output.NewHub(nil)
	loop := stream.NewLoop(stream.Deps{
		State:       state,
		Opener:      steadyOpener{},
		Broadcaster: output.NewBroadcaster(hub),
	}, config.StreamConfig{
		IdleInterval:     5 * time.Millisecond,
		PaceInterval:     5 * time.Millisecond,
		ReconnectBackoff: 10 * time.Millisecond,
		ReadMissPause:    5 * time.Millisecond,
		MaxWidth:         800,
	})
	svc := stream.NewService(loop)
	svc.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
		hub.Close()
	}()

	srv := httptest.NewServer(NewServer(Options{State: state, Health: svc, Viewers: hub}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	resp, err := http.Post(srv.URL+"/api/stream/source", "application/json", strings.NewReader(`{"address":"camA"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no frame received: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if img, _ := msg["image"].(string); img == "" || msg["faces"] != float64(0) {
		t.Errorf("unexpected frame message %s", data)
	}

	resp, err = http.Post(srv.URL+"/api/stream/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Health().State != "closed" {
		if time.Now().After(deadline) {
			t.Fatalf("connection not released after stop, health %+v", svc.Health())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
