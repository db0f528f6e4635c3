package main

import (
	"fmt"
	"io"

	"railnet.ai/internal/sim/world"
)

// writeMetrics renders world metrics in the Prometheus text exposition
// format.
func writeMetrics(rw io.Writer, worldID string, m world.WorldMetrics, indexDropped uint64) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP railnet_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE railnet_%s gauge\n", name)
		fmt.Fprintf(rw, "railnet_%s{world=%q} %v\n", name, worldID, v)
	}
	counter := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP railnet_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE railnet_%s counter\n", name)
		fmt.Fprintf(rw, "railnet_%s{world=%q} %v\n", name, worldID, v)
	}

	gauge("world_tick", "Current world tick.", m.Tick)
	gauge("world_players", "Joined players.", m.Players)
	gauge("world_units", "Live units.", m.Units)
	gauge("world_trade_ships", "Trade ships at sea.", m.Ships)
	gauge("world_observers", "Connected observer sessions.", m.Observers)

	gauge("rail_stations", "Active stations.", m.Stations)
	gauge("rail_railroads", "Active railroads.", m.Railroads)
	gauge("rail_clusters", "Connected station clusters.", m.Clusters)
	gauge("rail_pending_connections", "Queued track searches.", m.PendingConnections)
	gauge("rail_routes", "Routing table entries across all stations.", m.Routes)
	gauge("rail_trains", "Active trains.", m.Trains)

	counter("routing_adverts_accepted_total", "Route adverts that updated a table.", m.AdvertsAccepted)
	counter("routing_adverts_dropped_total", "Route adverts dropped as stale or too long.", m.AdvertsDropped)
	counter("routing_broadcasts_total", "Routing broadcasts sent.", m.Broadcasts)
	counter("routing_organic_installs_total", "Routes learned from train traffic.", m.OrganicInstalls)
	counter("rail_snaps_total", "Railroads split by a new station.", m.Snaps)
	counter("rail_path_failures_total", "Track searches that found no path.", m.PathFailures)

	fmt.Fprintf(rw, "# HELP railnet_trains_finished_total Trains that left the network, by outcome.\n")
	fmt.Fprintf(rw, "# TYPE railnet_trains_finished_total counter\n")
	fmt.Fprintf(rw, "railnet_trains_finished_total{world=%q,outcome=%q} %d\n", worldID, "arrived", m.TrainsArrived)
	fmt.Fprintf(rw, "railnet_trains_finished_total{world=%q,outcome=%q} %d\n", worldID, "stuck", m.TrainsStuck)
	fmt.Fprintf(rw, "railnet_trains_finished_total{world=%q,outcome=%q} %d\n", worldID, "cancelled", m.TrainsCancelled)

	counter("train_income_total", "Gold paid to train owners.", m.TrainIncome)
	counter("train_fares_total", "Gold paid as fares to railroad owners.", m.TrainFares)
	counter("events_total", "Events appended to the world backlog.", m.EventCursor)

	fmt.Fprintf(rw, "# HELP railnet_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE railnet_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "railnet_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "railnet_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "queries", m.QueueDepths.Queries)

	fmt.Fprintf(rw, "# HELP railnet_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE railnet_world_step_ms gauge\n")
	fmt.Fprintf(rw, "railnet_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	counter("index_dropped_total", "Index writes dropped because the queue was full.", indexDropped)
}
