// Package broadcast implements the Broadcaster (spec.md §4.8): per-run
// multi-subscriber fan-out of telemetry, events, alerts, status, and agent
// reasoning traces. Generalized from the teacher's single-callback
// progress-reporter pattern (core.ProgressReporter / core/async_task.go)
// into a subscriber set, since a mission run may have any number of
// observers (UI, compliance export, operator console) rather than one
// fixed handler.
package broadcast

import (
	"sync"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/ids"
)

// subscriberBufferSize bounds each subscriber's channel. A subscriber that
// falls behind has messages dropped for it rather than blocking the
// broadcaster or other subscribers (spec.md §4.8/§5: "a sink that
// errors/blocks is dropped for that message").
const subscriberBufferSize = 64

// Subscription is a live handle returned by Subscribe. Call Close to stop
// receiving messages and release the channel.
type Subscription struct {
	Handle string
	C      <-chan core.BroadcastMessage

	hub   *Hub
	runID string
	ch    chan core.BroadcastMessage
}

// Close unsubscribes and closes the underlying channel.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.runID, s.Handle)
}

// Hub is the process-wide broadcaster: one instance is shared by every
// Run Controller. It holds no per-run goroutines — Broadcast is called
// synchronously by the tick loop that produces the message.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan core.BroadcastMessage // runID -> handle -> channel
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: map[string]map[string]chan core.BroadcastMessage{}}
}

// Subscribe registers a new subscriber for runID and returns its
// Subscription. The caller should range over Subscription.C and call
// Close when done.
func (h *Hub) Subscribe(runID string) *Subscription {
	ch := make(chan core.BroadcastMessage, subscriberBufferSize)
	handle := ids.NewSubscriptionHandle()

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = map[string]chan core.BroadcastMessage{}
	}
	h.subs[runID][handle] = ch
	h.mu.Unlock()

	return &Subscription{Handle: handle, C: ch, hub: h, runID: runID, ch: ch}
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(runID, handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[runID]
	if !ok {
		return
	}
	if ch, ok := subs[handle]; ok {
		delete(subs, handle)
		close(ch)
	}
	if len(subs) == 0 {
		delete(h.subs, runID)
	}
}

// Broadcast fans msg out to every current subscriber of runID. It takes a
// snapshot of the subscriber set under the lock and sends outside it, so a
// slow subscriber can never hold up Broadcast's caller or other
// subscribers. Delivery is best-effort, at-most-once per subscriber: a
// full channel drops msg for that subscriber rather than blocking.
func (h *Hub) Broadcast(runID string, msg core.BroadcastMessage) {
	h.mu.RLock()
	subs := h.subs[runID]
	channels := make([]chan core.BroadcastMessage, 0, len(subs))
	for _, ch := range subs {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscriberCount reports how many live subscribers a run currently has,
// for diagnostics.
func (h *Hub) SubscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

// CloseRun unsubscribes and closes every subscriber of a run, called when
// a Run Controller shuts down (spec.md §4.7 terminal states).
func (h *Hub) CloseRun(runID string) {
	h.mu.Lock()
	subs := h.subs[runID]
	delete(h.subs, runID)
	h.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
