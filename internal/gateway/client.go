package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptodash/internal/marketdata"
	redisstore "cryptodash/internal/store/redis"
)

const snapshotTimeout = 2 * time.Second

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscriptions keyed by "<interval>:<symbol>". A client with none
	// receives every channel.
	subMu sync.RWMutex
	subs  map[string]Subscription
}

// sendInitialState replays the hub's latest payload per channel, newer
// than lastTS when given.
func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope, err := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		if err != nil {
			continue
		}
		c.hub.queue(c, envelope)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce whatever is queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one client frame.
func (c *Client) handleMessage(msg []byte) {
	var base struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &base) != nil {
		SendError(c, "", "invalid JSON")
		return
	}

	switch base.Type {
	case "SUBSCRIBE":
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		go c.handleSubscribe(sub)

	case "UNSUBSCRIBE":
		var unsub UnsubscribeMsg
		if err := json.Unmarshal(msg, &unsub); err != nil {
			SendError(c, "", "invalid UNSUBSCRIBE: "+err.Error())
			return
		}
		c.handleUnsubscribe(unsub)

	default:
		if base.Ping > 0 {
			SendJSON(c, map[string]any{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			return
		}
		SendError(c, "", "unknown message type "+base.Type)
	}
}

// handleSubscribe records the subscription and answers with a SNAPSHOT of
// the pair's latest update, followed by any buffered envelopes after
// LastSeq.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	sub := Subscription{Symbol: normalizeSymbol(msg.Symbol), Interval: msg.Interval}
	if sub.Symbol == "" || !marketdata.ValidInterval(sub.Interval) {
		SendError(c, msg.ReqID, "symbol and a valid interval are required")
		return
	}

	c.subMu.Lock()
	c.subs[sub.Key()] = sub
	c.subMu.Unlock()

	log.Printf("[subscribe] client subscribed: symbol=%s interval=%s", sub.Symbol, sub.Interval)

	channel := redisstore.IndicatorChannel(sub.Interval, sub.Symbol)
	snap := SnapshotMsg{
		Type:     "SNAPSHOT",
		ReqID:    msg.ReqID,
		Channel:  channel,
		Symbol:   sub.Symbol,
		Interval: sub.Interval,
		Data:     json.RawMessage("null"),
	}
	if entry, ok := c.hub.latestFor(channel); ok {
		snap.Data = entry.Data
		snap.ChannelSeq = entry.Seq
	} else if data := c.readSnapshot(sub); data != nil {
		snap.Data = data
	}
	SendJSON(c, snap)

	if msg.LastSeq > 0 {
		for _, e := range c.hub.replaySince(channel, msg.LastSeq) {
			c.hub.sendTo(c, e.Data)
		}
	}
}

// readSnapshot falls back to the stored snapshot, for pairs the hub has
// not seen published since it started.
func (c *Client) readSnapshot(sub Subscription) json.RawMessage {
	if c.hub.snapshots == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	data, err := c.hub.snapshots.Latest(ctx, sub.Symbol, sub.Interval)
	if err != nil {
		if !errors.Is(err, redisstore.ErrMiss) {
			log.Printf("[subscribe] snapshot read failed for %s: %v", sub.Key(), err)
		}
		return nil
	}
	if !json.Valid(data) {
		return nil
	}
	return data
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	sub := Subscription{Symbol: normalizeSymbol(msg.Symbol), Interval: msg.Interval}
	c.subMu.Lock()
	delete(c.subs, sub.Key())
	c.subMu.Unlock()

	log.Printf("[subscribe] client unsubscribed: symbol=%s interval=%s", sub.Symbol, sub.Interval)
}

// matchesChannel reports whether a message on channel should reach this
// client.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	interval, symbol, ok := redisstore.ParseIndicatorChannel(channel)
	if !ok {
		return true // non-indicator channel, always deliver
	}
	_, subscribed := c.subs[interval+":"+symbol]
	return subscribed
}
