package store

import (
	"context"
	"fmt"
	"time"
)

// Source history actions
const (
	ActionSet  = "set"
	ActionStop = "stop"
)

const sourceEventsTable = "source_events"

const createSourceEvents = `CREATE TABLE IF NOT EXISTS source_events (
	id BIGSERIAL PRIMARY KEY,
	address TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SourceEvent is one accepted control-plane change
type SourceEvent struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceHistory records set/stop requests in Postgres
type SourceHistory struct {
	client *Client
	now    func() time.Time
}

// NewSourceHistory creates a history over client
func NewSourceHistory(client *Client) *SourceHistory {
	return &SourceHistory{client: client, now: time.Now}
}

// Migrate creates the table when missing
func (h *SourceHistory) Migrate(ctx context.Context) error {
	if err := h.client.Exec(ctx, createSourceEvents); err != nil {
		return fmt.Errorf("create %s: %w", sourceEventsTable, err)
	}
	return nil
}

// Record stores one event
func (h *SourceHistory) Record(ctx context.Context, action, address string) error {
	_, _, err := h.client.Insert(ctx, sourceEventsTable, map[string]interface{}{
		"action":     action,
		"address":    address,
		"created_at": h.now().UTC(),
	}, nil)
	return err
}

// Recent returns up to limit events, newest first
func (h *SourceHistory) Recent(ctx context.Context, limit int) ([]SourceEvent, error) {
	rows, err := h.client.Select(ctx, sourceEventsTable,
		[]string{"id", "address", "action", "created_at"}, nil, []string{"-created_at", "-id"}, limit)
	if err != nil {
		return nil, err
	}

	events := make([]SourceEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

func eventFromRow(row Row) SourceEvent {
	var ev SourceEvent
	if id, ok := row["id"].(int64); ok {
		ev.ID = id
	}
	ev.Address, _ = row["address"].(string)
	ev.Action, _ = row["action"].(string)
	if t, ok := row["created_at"].(time.Time); ok {
		ev.CreatedAt = t
	}
	return ev
}
