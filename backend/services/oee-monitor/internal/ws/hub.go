package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/models"
	"plantoee/backend/services/oee-monitor/internal/pipeline"
	"plantoee/backend/services/oee-monitor/internal/stream"
)

// Source is the set of observables a Hub pushes to viewers.
type Source interface {
	Metrics() *pipeline.Observable[models.MetricsSnapshot]
	TimeSeries() *pipeline.Observable[models.TimeSeriesFrame]
	Pareto() *pipeline.Observable[models.ParetoResult]
	Orders() *pipeline.Observable[models.OrderInfo]
	Alerts() *pipeline.Observable[pipeline.Alert]
	StreamState() *pipeline.Observable[stream.State]
}

// Hub tracks viewer connections and fans out pushed messages. It keeps the latest
// message of each type so new viewers start with current values.
type Hub struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	latest       map[string][]byte
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub builds a hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections:  make(map[string]*Connection),
		latest:       make(map[string][]byte),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers conn and replays the latest messages to it.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
	for _, t := range latestTypes {
		if msg, ok := h.latest[t]; ok {
			conn.Send(msg)
		}
	}
}

// Remove unregisters a viewer.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish encodes payload and sends it to every viewer. Alerts are not replayed.
func (h *Hub) Publish(msgType string, payload any) {
	msg, err := Encode(msgType, payload)
	if err != nil {
		h.logger.Error("encode push message", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if msgType != TypeAlert {
		h.latest[msgType] = msg
	}
	for _, conn := range h.connections {
		conn.Send(msg)
	}
}

// Follow pushes every value src publishes, starting with the current ones. The
// returned func releases the subscriptions.
func (h *Hub) Follow(src Source) (stop func()) {
	unsubs := []func(){
		src.StreamState().Watch(func(s stream.State) { h.Publish(TypeStream, s.String()) }),
		src.Orders().Watch(func(o models.OrderInfo) { h.Publish(TypeOrder, o) }),
		src.Metrics().Watch(func(m models.MetricsSnapshot) { h.Publish(TypeMetrics, m) }),
		src.TimeSeries().Watch(func(f models.TimeSeriesFrame) { h.Publish(TypeTimeSeries, f) }),
		src.Pareto().Watch(func(r models.ParetoResult) { h.Publish(TypePareto, r) }),
		src.Alerts().Subscribe(func(a pipeline.Alert) { h.Publish(TypeAlert, a) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Start pings viewers until ctx is done, then closes them.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.CloseAll()
			return
		case <-ticker.C:
			h.mu.RLock()
			for _, conn := range h.connections {
				if err := conn.Ping(); err != nil {
					h.logger.Debug("viewer ping failed", zap.String("viewer_id", conn.ID()), zap.Error(err))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
