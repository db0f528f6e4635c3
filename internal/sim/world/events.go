package world

import (
	"encoding/json"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
	"railnet.ai/internal/sim/train"
)

const EventTrainFinished = "TRAIN_FINISHED"

func (w *World) xy(tiles []terrain.Tile) [][2]int {
	out := make([][2]int, len(tiles))
	for i, t := range tiles {
		out[i] = [2]int{w.grid.X(t), w.grid.Y(t)}
	}
	return out
}

// onRailEvent is the network's sink. Events are stamped with the world tick
// since commands run before the network has seen the current tick.
func (w *World) onRailEvent(e rail.Event) {
	if w.muted {
		return
	}
	ev := protocol.Event{"type": string(e.Kind), "tick": w.tick.Load()}
	switch e.Kind {
	case rail.EventRailroadConstructed:
		ev["railroad"] = int32(e.Railroad)
		ev["from"] = int32(e.From)
		ev["to"] = int32(e.To)
		ev["tiles"] = w.xy(e.Tiles)
	case rail.EventRailroadDestructed:
		ev["railroad"] = int32(e.Railroad)
	case rail.EventRailroadSnapped:
		ev["railroad"] = int32(e.Railroad)
		ev["station"] = int32(e.Station)
		ev["new_ids"] = []int32{int32(e.NewIDs[0]), int32(e.NewIDs[1])}
		ev["new_tiles"] = [][][2]int{w.xy(e.NewTiles[0]), w.xy(e.NewTiles[1])}
	case rail.EventFareUpdated:
		ev["railroad"] = int32(e.Railroad)
		ev["fare"] = e.Fare
		ev["trains"] = e.Trains
	case rail.EventStationAdded:
		ev["station"] = int32(e.Station)
		if len(e.Tiles) > 0 {
			ev["pos"] = [2]int{w.grid.X(e.Tiles[0]), w.grid.Y(e.Tiles[0])}
		}
	case rail.EventStationRemoved:
		ev["station"] = int32(e.Station)
	}
	w.appendEvent(ev)
}

func (w *World) onTrainOutcome(o train.Outcome) {
	w.outcomes = append(w.outcomes, o)
	switch o.State {
	case train.Arrived:
		w.totals.arrived++
	case train.Stuck:
		w.totals.stuck++
	case train.Cancelled:
		w.totals.cancelled++
	}
	w.totals.income += o.Income
	w.totals.fares += o.Fares
	w.appendEvent(protocol.Event{
		"type":   EventTrainFinished,
		"tick":   o.Tick,
		"train":  o.Train,
		"owner":  uint16(o.Owner),
		"src":    int32(o.Src),
		"dst":    int32(o.Dst),
		"state":  o.State.String(),
		"hops":   o.Hops,
		"fares":  o.Fares,
		"income": o.Income,
	})
}

func (w *World) appendEvent(ev protocol.Event) {
	w.cursor++
	w.tickEvents = append(w.tickEvents, ev)
	w.backlog = append(w.backlog, EventCursorItem{Cursor: w.cursor, Event: ev})
	if over := len(w.backlog) - w.cfg.EventBacklog; over > 0 {
		w.backlog = append(w.backlog[:0], w.backlog[over:]...)
	}
	if w.eventLogger != nil {
		_ = w.eventLogger.WriteEvent(EventLogEntry{Cursor: w.cursor, Tick: w.tick.Load(), Event: ev})
	}
}

// eventsAfter returns up to limit backlog events with a cursor greater than
// since, and the cursor to resume from.
func (w *World) eventsAfter(since uint64, limit int) ([]EventCursorItem, uint64) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []EventCursorItem
	next := since
	for _, it := range w.backlog {
		if it.Cursor <= since {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, it)
		next = it.Cursor
	}
	return out, next
}

type observerClient struct {
	id      string
	tickOut chan []byte
	kinds   map[string]bool
	network bool
}

func kindSet(kinds []string) map[string]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		kinds:   kindSet(req.Kinds),
		network: req.Network,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.kinds = kindSet(req.Kinds)
	c.network = req.Network
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	close(c.tickOut)
	delete(w.observers, id)
}

func (w *World) networkObs() *protocol.NetworkObs {
	s := w.net.Stats()
	return &protocol.NetworkObs{
		Stations:           s.Stations,
		Railroads:          s.Railroads,
		Clusters:           s.Clusters,
		Trains:             len(w.trains),
		PendingConnections: s.PendingConnections,
		Routes:             s.Routes,
	}
}

func (w *World) stepObservers(nowTick uint64, digest string) {
	if len(w.observers) == 0 {
		return
	}
	var nobs *protocol.NetworkObs
	for _, c := range w.observers {
		msg := protocol.TickMsg{
			Type:            protocol.TypeTick,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Digest:          digest,
			Events:          []protocol.Event{},
		}
		for _, ev := range w.tickEvents {
			if c.kinds == nil || c.kinds[ev["type"].(string)] {
				msg.Events = append(msg.Events, ev)
			}
		}
		if c.network {
			if nobs == nil {
				nobs = w.networkObs()
			}
			msg.Network = nobs
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
