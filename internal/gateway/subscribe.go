package gateway

import (
	"encoding/json"
	"log"
	"strings"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type     string `json:"type"`  // "SUBSCRIBE"
	ReqID    string `json:"reqId"` // echoed on the SNAPSHOT
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	// LastSeq is the last channel_seq the client saw on a previous
	// connection. Buffered envelopes after it are replayed after the
	// snapshot.
	LastSeq int64 `json:"lastSeq,omitempty"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type     string `json:"type"` // "UNSUBSCRIBE"
	ReqID    string `json:"reqId"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// SnapshotMsg is the server → client answer to SUBSCRIBE carrying the
// latest indicator update. Data is null until the engine has published
// one for the pair.
type SnapshotMsg struct {
	Type       string          `json:"type"` // "SNAPSHOT"
	ReqID      string          `json:"reqId,omitempty"`
	Channel    string          `json:"channel"`
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	ChannelSeq int64           `json:"channel_seq"`
	Data       json.RawMessage `json:"data"`
}

// ErrorMsg is the server → client ERROR response.
type ErrorMsg struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// Subscription is one symbol/interval pair a client follows.
type Subscription struct {
	Symbol   string
	Interval string
}

// Key matches the "<interval>:<symbol>" tail of the pair's channel.
func (s Subscription) Key() string { return s.Interval + ":" + s.Symbol }

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SendJSON marshals v and queues it on the client. Messages for a client
// that already left are dropped.
func SendJSON(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[subscribe] json marshal error: %v", err)
		return
	}
	if !c.hub.sendTo(c, data) {
		log.Println("[subscribe] client send buffer full, dropping message")
	}
}

// SendError sends an ERROR response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorMsg{Type: "ERROR", ReqID: reqID, Error: errMsg})
}
