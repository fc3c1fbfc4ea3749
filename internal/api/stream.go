package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/store"
)

// Version is reported by /api/health
var Version = "0.1.0"

const (
	historyTimeout      = 2 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type setSourceRequest struct {
	Address string `json:"address"`
	RTSPURL string `json:"rtsp_url"`
}

func decodeAddress(r *http.Request) (string, bool) {
	var req setSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = strings.TrimSpace(req.RTSPURL)
	}
	return address, address != ""
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	address, ok := decodeAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	s.opts.State.SetSource(address)
	s.recordHistory(r.Context(), store.ActionSet, address)

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "address": address})
}

func (s *Server) handleLegacySetStream(w http.ResponseWriter, r *http.Request) {
	address, ok := decodeAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "rtsp_url required")
		return
	}

	s.opts.State.SetSource(address)
	s.recordHistory(r.Context(), store.ActionSet, address)

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "rtsp_url": address})
}

func (s *Server) handleStopSource(w http.ResponseWriter, r *http.Request) {
	previous := s.opts.State.Address()
	s.opts.State.SetSource("")
	s.recordHistory(r.Context(), store.ActionStop, previous)

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// nullableAddress renders "no source" as JSON null
func nullableAddress(address string) interface{} {
	if address == "" {
		return nil
	}
	return address
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": nullableAddress(s.opts.State.Address())})
}

func (s *Server) handleLegacyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rtsp_url": nullableAddress(s.opts.State.Address())})
}

func (s *Server) handleStreamHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "stream not running")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Health.Health())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusNotFound, "source history is not configured")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	events, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("Failed to load source history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// recordHistory never fails the request; the state change already happened
func (s *Server) recordHistory(ctx context.Context, action, address string) {
	if s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	if err := s.opts.History.Record(ctx, action, address); err != nil {
		logger.WithComponent("api").Warn().Err(err).Str("action", action).Msg("Failed to record source history")
	}
}
