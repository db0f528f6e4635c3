package world

import "time"

func (w *World) stepInternal(cmds []CommandEnvelope) (uint64, string) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.tickEvents = w.tickEvents[:0]
	w.outcomes = w.outcomes[:0]

	// Commands apply in inbox order before any system runs.
	recorded := make([]RecordedCommand, 0, len(cmds))
	for _, env := range cmds {
		a := w.applyCommand(env.Cmd, nowTick)
		recorded = append(recorded, RecordedCommand{Player: env.Cmd.Player, Cmd: env.Cmd})
		if env.Resp != nil {
			env.Resp <- a
		}
	}

	// Systems: dispatch -> network -> trains -> ships
	w.dispatchFactoryTrains(nowTick)
	w.net.Tick(nowTick)
	for _, id := range w.sortedTrainIDs() {
		tr := w.trains[id]
		tr.Tick(nowTick)
		if !tr.Active() {
			delete(w.trains, id)
		}
	}
	w.expireTradeShips(nowTick)
	// Settle lazy cluster splits before hashing: the digest covers cluster
	// ids, and observer queries between ticks must not mutate state.
	w.net.ResolveDirtyClusters()

	digest := w.stateDigest(nowTick)
	w.stepObservers(nowTick, digest)

	if w.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest}
		for _, o := range w.outcomes {
			entry.Outcomes = append(entry.Outcomes, outcomeV1(o))
		}
		_ = w.tickLogger.WriteTick(entry)
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
	return nowTick, digest
}
