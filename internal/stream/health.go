package stream

import "time"

// Health describes the live connection, as opposed to the requested address
type Health struct {
	State               string     `json:"state"`
	Address             string     `json:"address"`
	ConsecutiveFailures uint64     `json:"consecutive_failures"`
	Reconnects          uint64     `json:"reconnects"`
	OpenFailures        uint64     `json:"open_failures"`
	ReadMisses          uint64     `json:"read_misses"`
	FramesPublished     uint64     `json:"frames_published"`
	LastFrameAt         *time.Time `json:"last_frame_at"`
	LastError           string     `json:"last_error,omitempty"`
}

// Health returns the snapshot taken at the end of the last iteration
func (l *Loop) Health() Health {
	l.healthMu.RLock()
	defer l.healthMu.RUnlock()
	return l.health
}

func (l *Loop) recordHealth() {
	stats := l.conn.Stats()
	h := Health{
		State:               l.conn.State().String(),
		Address:             l.conn.Address(),
		ConsecutiveFailures: stats.ConsecutiveFailures,
		Reconnects:          stats.Reconnects,
		OpenFailures:        stats.OpenFailures,
		ReadMisses:          stats.ReadMisses,
		FramesPublished:     l.published,
	}
	if !l.lastFrame.IsZero() {
		t := l.lastFrame
		h.LastFrameAt = &t
	}
	if err := l.conn.LastError(); err != nil {
		h.LastError = err.Error()
	}

	l.healthMu.Lock()
	l.health = h
	l.healthMu.Unlock()
}
