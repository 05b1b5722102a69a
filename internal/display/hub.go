// Package display is the one-way sink between the capture loop and whatever
// presents frames and status to a person.
package display

import (
	"sync"
	"sync/atomic"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// Hub keeps the latest frame and status and fans frames out to
// subscribers.  Publishing never blocks: each subscriber has a single-slot
// mailbox and an unread frame is replaced by the newer one.
type Hub struct {
	mu       sync.RWMutex
	status   types.Status
	latest   []byte
	frameSeq uint64
	subs     map[uint64]chan []byte
	nextSub  uint64

	drops atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		status: types.StatusStopped,
		subs:   make(map[uint64]chan []byte),
	}
}

func (h *Hub) PublishFrame(jpeg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = jpeg
	h.frameSeq++

	for _, ch := range h.subs {
		select {
		case ch <- jpeg:
			continue
		default:
		}
		// Mailbox full: drop the stale frame and retry once.  We hold the
		// write lock, so no other publisher can refill the slot in between.
		select {
		case <-ch:
			h.drops.Add(1)
		default:
		}
		select {
		case ch <- jpeg:
		default:
		}
	}
}

func (h *Hub) PublishStatus(s types.Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

func (h *Hub) Status() types.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Latest returns the most recent frame and its sequence number.  seq is 0
// until the first frame arrives.
func (h *Hub) Latest() (jpeg []byte, seq uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.frameSeq
}

// Subscribe registers a frame reader.  The returned cancel func must be
// called once the reader is done; it closes the channel.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Drops counts frames replaced before a subscriber read them.
func (h *Hub) Drops() uint64 { return h.drops.Load() }
