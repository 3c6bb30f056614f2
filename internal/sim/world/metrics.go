package world

type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players int `json:"players"`
	Objects int `json:"objects"`
	Clients int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Broadcasts     uint64            `json:"broadcasts"`
	MessagesSent   uint64            `json:"messages_sent"`
	BytesSent      uint64            `json:"bytes_sent"`
	Evictions      uint64            `json:"evictions"`
	UpdatesApplied uint64            `json:"updates_applied"`
	Rejected       map[string]uint64 `json:"rejected,omitempty"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// counters are owned by the world loop and copied into WorldMetrics.
type counters struct {
	broadcasts     uint64
	messagesSent   uint64
	bytesSent      uint64
	evictions      uint64
	updatesApplied uint64
	rejected       map[string]uint64
}

func (c *counters) reject(code string) {
	if c.rejected == nil {
		c.rejected = map[string]uint64{}
	}
	c.rejected[code]++
}

func (w *World) publishMetrics(stepMS float64) {
	var rejected map[string]uint64
	if len(w.counters.rejected) > 0 {
		rejected = make(map[string]uint64, len(w.counters.rejected))
		for k, v := range w.counters.rejected {
			rejected[k] = v
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:    w.tick.Load(),
		Players: w.store.NumPlayers(),
		Objects: w.store.NumObjects(),
		Clients: len(w.clients),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:         stepMS,
		Broadcasts:     w.counters.broadcasts,
		MessagesSent:   w.counters.messagesSent,
		BytesSent:      w.counters.bytesSent,
		Evictions:      w.counters.evictions,
		UpdatesApplied: w.counters.updatesApplied,
		Rejected:       rejected,
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
