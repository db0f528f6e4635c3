package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/world"
	"railnet.ai/internal/transport/guard"
)

// Server accepts COMMAND messages over a websocket and answers each with
// an ACK once the world loop has applied it. Acks are written in the order
// the commands arrived.
type Server struct {
	world *world.World
	guard *guard.Guard
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, g *guard.Guard, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world: w,
		guard: g,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 32)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Each command is applied before the next is read, so a
		// client can pipeline without reordering its own commands.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				continue
			}
			ack := s.handle(ctx, msg)
			if ack == nil {
				break
			}
			b, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
	}
}

// handle returns nil when the world has stopped or the connection is gone.
func (s *Server) handle(ctx context.Context, msg []byte) *protocol.AckMsg {
	cmd, rej := s.guard.Decode(msg, s.world.CurrentTick())
	if rej != nil {
		return rej
	}
	ack, err := s.world.Apply(ctx, cmd)
	if err != nil {
		s.log.Printf("ws: apply %s %s: %v", cmd.Cmd, cmd.ID, err)
		return nil
	}
	return &ack
}
