// Package httpapi is the JSON HTTP surface of a running world: read-only
// views taken between ticks plus a synchronous command endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/world"
	"railnet.ai/internal/transport/guard"
)

const maxCommandBytes = 16 * 1024

type Server struct {
	world *world.World
	guard *guard.Guard
	log   *log.Logger

	// Timeout bounds every call into the world loop.
	Timeout time.Duration
}

func NewServer(w *world.World, g *guard.Guard, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{world: w, guard: g, log: logger, Timeout: 5 * time.Second}
}

// Routes returns the /v1 router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/state", s.handleState)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/preview", s.handlePreview)
	r.Get("/events", s.handleEvents)
	r.Get("/stations/{id}/routes", s.handleRoutes)
	r.Post("/commands", s.handleCommand)
	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	v, err := s.world.State(ctx)
	if err != nil {
		s.writeWorldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Metrics())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	owner, errO := strconv.ParseUint(q.Get("owner"), 10, 16)
	if errX != nil || errY != nil || errO != nil {
		writeJSONError(w, http.StatusBadRequest, "x, y and owner are required integers")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	v, err := s.world.Preview(ctx, x, y, uint16(owner))
	if err != nil {
		s.writeWorldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		since uint64
		limit int
		err   error
	)
	if v := q.Get("since"); v != "" {
		if since, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad since")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, "bad limit")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	items, next, err := s.world.EventsAfter(ctx, since, limit)
	if err != nil {
		s.writeWorldError(w, err)
		return
	}
	msg := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		Events:          make([]protocol.EventBatchItem, 0, len(items)),
		NextCursor:      next,
	}
	for _, it := range items {
		msg.Events = append(msg.Events, protocol.EventBatchItem{Cursor: it.Cursor, Event: it.Event})
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad station id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	routes, err := s.world.Routes(ctx, int32(id))
	if err != nil {
		s.writeWorldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// handleCommand applies one COMMAND and answers with its ACK. Commands the
// world rejects are still 200; only transport-level failures change status.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(raw) > maxCommandBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "command too large")
		return
	}
	cmd, rej := s.guard.Decode(raw, s.world.CurrentTick())
	if rej != nil {
		status := http.StatusBadRequest
		if rej.Code == protocol.ErrRateLimit {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, rej)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	ack, err := s.world.Apply(ctx, cmd)
	if err != nil {
		s.writeWorldError(w, err)
		return
	}
	if ack.Code == protocol.ErrBusy {
		writeJSON(w, http.StatusServiceUnavailable, ack)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) writeWorldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, world.ErrUnknownStation):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, world.ErrStopped):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "world did not answer in time")
	default:
		s.log.Printf("httpapi: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
