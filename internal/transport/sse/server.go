// Package sse republishes the world's per-tick event stream as server-sent
// events. It joins the world as an ordinary observer session, so it sees the
// same TICK messages a websocket observer would.
//
// Streams:
//
//	events  one SSE event per rail or train event, named by its type
//	ticks   one SSE event per tick with the digest and network counters
package sse

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/world"
)

const (
	StreamEvents = "events"
	StreamTicks  = "ticks"
)

type TickSummary struct {
	Tick    uint64               `json:"tick"`
	Digest  string               `json:"digest,omitempty"`
	Events  int                  `json:"events"`
	Network *protocol.NetworkObs `json:"network,omitempty"`
}

type Server struct {
	world *world.World
	log   *log.Logger
	s     *sse.Server
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := sse.New()
	// The world loop is the only replay source; keeping every event in the
	// stream would grow without bound.
	s.AutoReplay = false
	s.CreateStream(StreamEvents)
	s.CreateStream(StreamTicks)
	return &Server{world: w, log: logger, s: s}
}

// Run forwards ticks until ctx is done or the world stops.
func (s *Server) Run(ctx context.Context) error {
	sid := "SSE-" + uuid.NewString()
	tickOut := make(chan []byte, 64)
	select {
	case s.world.ObserverJoin() <- world.ObserverJoinRequest{SessionID: sid, TickOut: tickOut, Network: true}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		select {
		case s.world.ObserverLeave() <- sid:
		case <-time.After(time.Second):
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-tickOut:
			if !ok {
				return nil
			}
			s.forward(b)
		}
	}
}

func (s *Server) forward(b []byte) {
	var msg protocol.TickMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		s.log.Printf("sse: decode tick: %v", err)
		return
	}
	tickID := []byte(strconv.FormatUint(msg.Tick, 10))
	for _, ev := range msg.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		name, _ := ev["type"].(string)
		s.s.TryPublish(StreamEvents, &sse.Event{ID: tickID, Event: []byte(name), Data: data})
	}
	data, err := json.Marshal(TickSummary{Tick: msg.Tick, Digest: msg.Digest, Events: len(msg.Events), Network: msg.Network})
	if err != nil {
		return
	}
	s.s.TryPublish(StreamTicks, &sse.Event{ID: tickID, Data: data})
}

// ServeHTTP serves the stream named by the "stream" query parameter.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.s.ServeHTTP(w, r)
}

func (s *Server) Close() { s.s.Close() }
