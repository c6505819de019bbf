package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// replayDepth is the number of envelopes kept per channel.
const replayDepth = 500

// Broadcaster wraps published payloads in the WS envelope and sends them
// to the clients subscribed to their channel.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast records data as the channel's latest payload and fans it out.
// The envelope carries a global seq and a per-channel channel_seq so
// clients can detect gaps and backfill from the replay buffer.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	if srcTS := extractTS(data); !srcTS.IsZero() {
		if ms := float64(now.Sub(srcTS).Microseconds()) / 1000.0; ms >= 0 {
			b.hub.Latency.Record(ms)
		}
	}

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq
	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayDepth)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+160), channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		b.hub.queue(client, buf)
	}
}

// appendEnvelope writes
// {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..} to buf
// without going through encoding/json. channel must not need escaping,
// which holds for pub:ind:<interval>:<symbol>.
func appendEnvelope(buf []byte, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// extractTS reads the computedAt (unix ms) stamp of an indicator update.
func extractTS(data []byte) time.Time {
	var partial struct {
		ComputedAt int64 `json:"computedAt"`
	}
	if err := json.Unmarshal(data, &partial); err != nil || partial.ComputedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(partial.ComputedAt)
}
