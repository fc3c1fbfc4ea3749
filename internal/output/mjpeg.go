package output

import (
	"net/http"
	"sync/atomic"

	"github.com/hybridgroup/mjpeg"
)

// MJPEGSink serves the annotated frames as a multipart JPEG stream that any
// browser <img> tag can display
type MJPEGSink struct {
	stream *mjpeg.Stream
	frames atomic.Uint64
}

// NewMJPEGSink creates an MJPEG stream sink
func NewMJPEGSink() *MJPEGSink {
	return &MJPEGSink{stream: mjpeg.NewStream()}
}

// Name returns the sink name
func (m *MJPEGSink) Name() string {
	return "mjpeg"
}

// Deliver pushes the frame's JPEG to connected clients; busy clients skip it
func (m *MJPEGSink) Deliver(msg Message) {
	if len(msg.JPEG) == 0 {
		return
	}
	m.stream.UpdateJPEG(msg.JPEG)
	m.frames.Add(1)
}

// Frames returns how many frames were pushed to the stream
func (m *MJPEGSink) Frames() uint64 {
	return m.frames.Load()
}

// ServeHTTP streams frames to one client
func (m *MJPEGSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	m.stream.ServeHTTP(w, r)
}
