package world

import (
	"fmt"

	"railnet.ai/internal/protocol"
	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/terrain"
)

func ack(cmd protocol.CommandMsg, now uint64) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmd.ID,
		Accepted:        true,
		ServerTick:      now,
	}
}

func reject(a protocol.AckMsg, code, msg string) protocol.AckMsg {
	a.Accepted = false
	a.Code = code
	a.Message = msg
	return a
}

// applyCommand validates and applies one command at the current tick.
func (w *World) applyCommand(cmd protocol.CommandMsg, now uint64) protocol.AckMsg {
	a := ack(cmd, now)
	p := terrain.PlayerID(cmd.Player)
	if p == 0 || p > terrain.MaxPlayerID {
		return reject(a, protocol.ErrBadRequest, "bad player id")
	}
	if cmd.Cmd == protocol.CmdJoin {
		return w.cmdJoin(a, p, now)
	}
	if w.players[p] == nil {
		return reject(a, protocol.ErrNoPermission, "player has not joined")
	}
	switch cmd.Cmd {
	case protocol.CmdBuild:
		return w.cmdBuild(a, p, cmd)
	case protocol.CmdDestroy:
		return w.cmdDestroy(a, p, rail.StationID(cmd.Station))
	case protocol.CmdSpawnTrain:
		return w.cmdSpawnTrain(a, p, rail.StationID(cmd.Src), rail.StationID(cmd.Dst))
	case protocol.CmdAlly:
		return w.cmdAlly(a, p, terrain.PlayerID(cmd.Target), cmd.Stance)
	default:
		return reject(a, protocol.ErrBadRequest, "unknown cmd: "+cmd.Cmd)
	}
}

func (w *World) cmdJoin(a protocol.AckMsg, p terrain.PlayerID, now uint64) protocol.AckMsg {
	if w.players[p] != nil {
		return a
	}
	w.players[p] = &Player{
		ID:         p,
		Name:       fmt.Sprintf("player-%d", p),
		Gold:       w.cfg.StartingGold,
		JoinedTick: now,
	}
	w.log.Printf("tick=%d player=%d joined", now, p)
	return a
}

func parseKind(s string) (rail.StructureKind, bool) {
	k := rail.ParseKind(s)
	if k == rail.KindOther && s != "OTHER" {
		return 0, false
	}
	return k, true
}

func (w *World) nearWater(t terrain.Tile) bool {
	for _, nb := range w.grid.Neighbors(t) {
		if !w.grid.IsLand(nb) {
			return true
		}
	}
	return false
}

func (w *World) cmdBuild(a protocol.AckMsg, p terrain.PlayerID, cmd protocol.CommandMsg) protocol.AckMsg {
	kind, ok := parseKind(cmd.Kind)
	if !ok {
		return reject(a, protocol.ErrBadRequest, "unknown kind: "+cmd.Kind)
	}
	x, y := cmd.Pos[0], cmd.Pos[1]
	if !w.grid.InBounds(x, y) {
		return reject(a, protocol.ErrInvalidTarget, "out of bounds")
	}
	t := w.grid.Ref(x, y)
	if !w.grid.IsLand(t) {
		return reject(a, protocol.ErrInvalidTarget, "not land")
	}
	if kind == rail.KindPort && !w.nearWater(t) {
		return reject(a, protocol.ErrInvalidTarget, "port must touch water")
	}
	if len(w.NearbyUnits(t, 0)) > 0 {
		return reject(a, protocol.ErrConflict, "tile occupied")
	}
	if o := w.grid.Owner(t); o != 0 && !w.CanBuild(p, t) {
		return reject(a, protocol.ErrNoPermission, "tile owned by another player")
	}
	cost := w.cfg.buildCost(kind)
	if w.players[p].Gold < cost {
		return reject(a, protocol.ErrNoResource, "not enough gold")
	}
	w.RemoveGold(p, cost)
	w.grid.Claim(t, w.cfg.ClaimRadius, p)

	unit := w.SpawnUnit(kind.String(), p, t)
	s := &Structure{Unit: unit, Kind: kind, Owner: p, Tile: t}
	w.addBuilding(s)
	if !w.qualifies(kind, t) {
		w.log.Printf("tick=%d player=%d built %s unit=%d without station", a.ServerTick, p, kind, unit)
		return a
	}
	res := w.attachStation(s)
	w.log.Printf("tick=%d player=%d built %s station=%d snapped=%d queued=%d", a.ServerTick, p, kind, s.Station, len(res.Snapped), res.Queued)
	a.Station = int32(s.Station)
	if kind == rail.KindFactory {
		w.promoteNear(t, a.ServerTick)
	}
	return a
}

func (w *World) cmdDestroy(a protocol.AckMsg, p terrain.PlayerID, id rail.StationID) protocol.AckMsg {
	s := w.structures[id]
	if s == nil || !w.net.StationActive(id) {
		return reject(a, protocol.ErrInvalidTarget, "no such station")
	}
	if s.Owner != p {
		return reject(a, protocol.ErrNoPermission, "not your station")
	}
	w.removeStructure(id)
	a.Station = int32(id)
	return a
}

// removeStructure deletes the building and its station. Trains bound to or
// from the station cancel on their next tick.
func (w *World) removeStructure(id rail.StationID) {
	s := w.structures[id]
	if s == nil {
		return
	}
	w.net.RemoveStation(id)
	w.DeleteUnit(s.Unit)
	w.dropBuilding(s)
}

func (w *World) cmdSpawnTrain(a protocol.AckMsg, p terrain.PlayerID, src, dst rail.StationID) protocol.AckMsg {
	if !w.net.StationActive(src) || !w.net.StationActive(dst) {
		return reject(a, protocol.ErrInvalidTarget, "no such station")
	}
	if src == dst {
		return reject(a, protocol.ErrBadRequest, "src equals dst")
	}
	if w.net.Station(src).Owner != p {
		return reject(a, protocol.ErrNoPermission, "not your station")
	}
	if !w.net.SameCluster(src, dst) {
		return reject(a, protocol.ErrBlocked, "stations are not connected")
	}
	if len(w.trains) >= w.cfg.MaxTrains {
		return reject(a, protocol.ErrBusy, "too many trains")
	}
	tr := w.newTrain(p, src, dst)
	a.Train = tr.ID
	return a
}

func (w *World) cmdAlly(a protocol.AckMsg, p, target terrain.PlayerID, stance string) protocol.AckMsg {
	if target == p || w.players[target] == nil {
		return reject(a, protocol.ErrInvalidTarget, "no such player")
	}
	key := stanceKey(p, target)
	switch stance {
	case protocol.StanceAlly:
		w.stances[key] = rail.RelAlly
	case protocol.StanceEnemy:
		w.stances[key] = rail.RelEnemy
	case protocol.StanceNeutral:
		delete(w.stances, key)
	default:
		return reject(a, protocol.ErrBadRequest, "unknown stance: "+stance)
	}
	return a
}
