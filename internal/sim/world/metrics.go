package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players    int `json:"players"`
	Structures int `json:"structures"`
	Units      int `json:"units"`
	Trains     int `json:"trains"`
	Ships      int `json:"ships"`
	Observers  int `json:"observers"`

	Stations           int `json:"stations"`
	Railroads          int `json:"railroads"`
	Clusters           int `json:"clusters"`
	PendingConnections int `json:"pending_connections"`
	Routes             int `json:"routes"`

	AdvertsAccepted int `json:"adverts_accepted"`
	AdvertsDropped  int `json:"adverts_dropped"`
	Broadcasts      int `json:"broadcasts"`
	OrganicInstalls int `json:"organic_installs"`
	Snaps           int `json:"snaps"`
	PathFailures    int `json:"path_failures"`

	TrainsArrived   uint64 `json:"trains_arrived"`
	TrainsStuck     uint64 `json:"trains_stuck"`
	TrainsCancelled uint64 `json:"trains_cancelled"`
	TrainIncome     int64  `json:"train_income"`
	TrainFares      int64  `json:"train_fares"`

	EventCursor uint64 `json:"event_cursor"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Queries int `json:"queries"`
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	s := w.net.Stats()
	w.metrics.Store(WorldMetrics{
		Tick:               nextTick,
		Players:            len(w.players),
		Structures:         len(w.buildings),
		Units:              len(w.units),
		Trains:             len(w.trains),
		Ships:              len(w.ships),
		Observers:          len(w.observers),
		Stations:           s.Stations,
		Railroads:          s.Railroads,
		Clusters:           s.Clusters,
		PendingConnections: s.PendingConnections,
		Routes:             s.Routes,
		AdvertsAccepted:    s.AdvertsAccepted,
		AdvertsDropped:     s.AdvertsDropped,
		Broadcasts:         s.Broadcasts,
		OrganicInstalls:    s.OrganicInstalls,
		Snaps:              s.Snaps,
		PathFailures:       s.PathFailures,
		TrainsArrived:      w.totals.arrived,
		TrainsStuck:        w.totals.stuck,
		TrainsCancelled:    w.totals.cancelled,
		TrainIncome:        w.totals.income,
		TrainFares:         w.totals.fares,
		EventCursor:        w.cursor,
		QueueDepths: QueueDepths{
			Inbox:   len(w.inbox),
			Queries: len(w.queries),
		},
		StepMS: stepMS,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
