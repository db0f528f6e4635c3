package world

import (
	"context"
	"errors"
	"time"

	"railnet.ai/internal/protocol"
)

var ErrStopped = errors.New("world stopped")

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []CommandEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case fn := <-w.queries:
			fn()
		case env := <-w.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			w.stepInternal(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Submit queues a command for the next tick. It fails fast with E_BUSY when
// the inbox is full.
func (w *World) Submit(env CommandEnvelope) bool {
	select {
	case w.inbox <- env:
		return true
	default:
		return false
	}
}

// Apply submits a command and waits for its acknowledgement.
func (w *World) Apply(ctx context.Context, cmd protocol.CommandMsg) (protocol.AckMsg, error) {
	env := CommandEnvelope{Cmd: cmd, Resp: make(chan protocol.AckMsg, 1)}
	if !w.Submit(env) {
		a := ack(cmd, w.tick.Load())
		return reject(a, protocol.ErrBusy, "inbox full"), nil
	}
	select {
	case a := <-env.Resp:
		return a, nil
	case <-ctx.Done():
		return protocol.AckMsg{}, ctx.Err()
	case <-w.stop:
		return protocol.AckMsg{}, ErrStopped
	}
}

// Do runs fn on the world loop goroutine between ticks.
func (w *World) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case w.queries <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrStopped
	}
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server. It is intended for deterministic replays and
// tests.
func (w *World) StepOnce(cmds []protocol.CommandMsg) (tick uint64, digest string) {
	envs := make([]CommandEnvelope, len(cmds))
	for i, c := range cmds {
		envs[i] = CommandEnvelope{Cmd: c}
	}
	return w.stepInternal(envs)
}
