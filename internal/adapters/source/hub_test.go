package source

import (
	"testing"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

func TestHubSubscribePublish(t *testing.T) {
	h := newHub()

	var got []string
	sub := h.subscribe(domain.ChannelPrice, func(ev domain.StreamEvent) {
		got = append(got, ev.Symbol)
	})

	h.publish(domain.StreamEvent{Channel: domain.ChannelPrice, Symbol: "BTCUSDT"})
	h.publish(domain.StreamEvent{Channel: domain.ChannelCandle, Symbol: "ETHUSDT"})

	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected one price event for BTCUSDT, got %v", got)
	}

	h.unsubscribe(domain.ChannelPrice, sub)
	h.publish(domain.StreamEvent{Channel: domain.ChannelPrice, Symbol: "BTCUSDT"})
	if len(got) != 1 {
		t.Fatalf("received event after unsubscribe")
	}
}

func TestHubLastUnsubscribeFreesChannel(t *testing.T) {
	h := newHub()

	a := h.subscribe(domain.ChannelPrice, func(domain.StreamEvent) {})
	b := h.subscribe(domain.ChannelPrice, func(domain.StreamEvent) {})
	if n := h.subscriberCount(domain.ChannelPrice); n != 2 {
		t.Fatalf("subscriberCount = %d, want 2", n)
	}

	h.unsubscribe(domain.ChannelPrice, a)
	h.unsubscribe(domain.ChannelPrice, b)
	if n := h.subscriberCount(domain.ChannelPrice); n != 0 {
		t.Fatalf("subscriberCount = %d, want 0", n)
	}
	if _, ok := h.subs[domain.ChannelPrice]; ok {
		t.Fatal("channel entry not freed after last unsubscribe")
	}
}

func TestHubReentrantUnsubscribe(t *testing.T) {
	h := newHub()

	fired := 0
	var sub port.Subscription
	sub = h.subscribe(domain.ChannelPrice, func(domain.StreamEvent) {
		fired++
		h.unsubscribe(domain.ChannelPrice, sub)
	})

	h.publish(domain.StreamEvent{Channel: domain.ChannelPrice, Symbol: "BTCUSDT"})
	h.publish(domain.StreamEvent{Channel: domain.ChannelPrice, Symbol: "BTCUSDT"})

	if fired != 1 {
		t.Fatalf("handler fired %d times, want 1", fired)
	}
}
