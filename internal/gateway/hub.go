package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptodash/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// MessageSource delivers indicator updates published by the engine, such
// as a Redis pattern subscription.
type MessageSource interface {
	Run(ctx context.Context, fn func(channel string, payload []byte))
}

// SnapshotReader returns the last published update for a pair when the
// hub has not seen one since it started.
type SnapshotReader interface {
	Latest(ctx context.Context, symbol, interval string) ([]byte, error)
}

// Hub manages WebSocket clients and fans indicator updates out to them.
// Fan-out itself lives in Broadcaster; the hub owns the shared state.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Publish-to-broadcast latency
	Latency *LatencyTracker

	Broadcaster *Broadcaster

	snapshots SnapshotReader
	prom      *metrics.Metrics
	started   time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a hub. snapshots and m may be nil.
func NewHub(snapshots SnapshotReader, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		snapshots:   snapshots,
		prom:        m,
		started:     time.Now(),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run feeds every message from src to the broadcaster. Blocks until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context, src MessageSource) {
	log.Println("[gateway] hub running")
	src.Run(ctx, h.Broadcaster.Broadcast)
}

// HandleWS upgrades the request to a WebSocket and registers the client.
// A last_ts query parameter limits the initial state to newer updates.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	h.Register(conn, r.URL.Query().Get("last_ts"))
}

// Register adopts an upgraded connection.
func (h *Hub) Register(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]Subscription),
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
}

// sendTo queues data for c unless its buffer is full. A client that has
// left counts as delivered.
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return true
	}
	return h.queue(c, data)
}

// queue must be called with h.mu held.
func (h *Hub) queue(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		if h.prom != nil {
			h.prom.WSMessagesSent.Inc()
		}
		return true
	default:
		if h.prom != nil {
			h.prom.WSDrops.Inc()
		}
		return false
	}
}

// sendAll queues data on every client, dropping it for slow ones.
func (h *Hub) sendAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.queue(client, data)
	}
}

// LatestAll returns the most recent payload per channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// latestFor returns the hub's last payload on channel.
func (h *Hub) latestFor(channel string) (latestEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[channel]
	return e, ok
}

// GetReplayRange returns buffered envelopes for a channel in
// [fromSeq, toSeq]. Backs /api/replay.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// replaySince returns buffered envelopes after seq.
func (h *Hub) replaySince(channel string, seq int64) []ReplayEntry {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rb.Since(seq)
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Metrics returns the current system snapshot including hub figures.
func (h *Hub) Metrics() SystemMetrics {
	m := CollectMetrics(h.started)
	m.WSClients = h.ClientCount()
	m.Latency = h.Latency.Percentiles()
	return m
}

// StartMetricsBroadcast pushes a "metrics" message to every client each
// period until ctx is cancelled.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			envelope, err := json.Marshal(map[string]any{
				"type":    "metrics",
				"metrics": h.Metrics(),
			})
			if err != nil {
				continue
			}
			h.sendAll(envelope)
		}
	}
}
