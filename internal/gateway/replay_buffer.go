package gateway

import "sync"

// ReplayEntry is one broadcast envelope kept for gap backfill.
type ReplayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer keeps the last N envelopes of one indicator channel so a
// client that saw a gap in channel_seq can fetch what it missed.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []ReplayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer holding capacity envelopes
// (default 500).
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]ReplayEntry, capacity)}
}

// Push stores a copy of data under seq, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	rb.buf[rb.pos] = ReplayEntry{Seq: seq, Data: cp}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
	rb.mu.Unlock()
}

// Range returns the entries with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []ReplayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []ReplayEntry
	for i := 0; i < rb.len(); i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Since returns the entries after seq, oldest first.
func (rb *ReplayBuffer) Since(seq int64) []ReplayEntry {
	return rb.Range(seq+1, 1<<62)
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index maps a logical position (0 = oldest) to a slot in buf.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
