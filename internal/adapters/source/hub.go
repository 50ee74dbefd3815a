package source

import (
	"sync"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

// hub is the per-adapter subscriber registry: one callback set per channel,
// removing the last subscription frees the channel entry.
type hub struct {
	mu   sync.Mutex
	next port.Subscription
	subs map[domain.Channel]map[port.Subscription]port.StreamHandler
}

func newHub() *hub {
	return &hub{subs: make(map[domain.Channel]map[port.Subscription]port.StreamHandler)}
}

func (h *hub) subscribe(ch domain.Channel, fn port.StreamHandler) port.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	set, ok := h.subs[ch]
	if !ok {
		set = make(map[port.Subscription]port.StreamHandler)
		h.subs[ch] = set
	}
	set[id] = fn
	return id
}

func (h *hub) unsubscribe(ch domain.Channel, id port.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[ch]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.subs, ch)
	}
}

func (h *hub) subscriberCount(ch domain.Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ch])
}

// publish delivers the event to every handler on its channel. Handlers run
// against a snapshot of the set, so a handler may unsubscribe (itself
// included) without breaking iteration.
func (h *hub) publish(ev domain.StreamEvent) {
	h.mu.Lock()
	set := h.subs[ev.Channel]
	handlers := make([]port.StreamHandler, 0, len(set))
	for _, fn := range set {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
