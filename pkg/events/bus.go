package events

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultSubscriberBuffer is the per-subscriber channel depth. A
	// subscriber that falls further behind loses events; catchup recovers
	// them by id.
	defaultSubscriberBuffer = 64

	// historyLimit caps the per-channel catchup ring. Clients that missed
	// more than this get an overflow signal and must do a full REST reload.
	historyLimit = 200
)

// Bus is the process-wide publish/subscribe hub. Publishes never block:
// a subscriber with a full buffer is skipped and recovers via catchup.
type Bus struct {
	mu      sync.Mutex
	seq     int64
	nextSub int
	history map[string][]Event
	subs    map[int]*Subscription
	logger  *slog.Logger
}

// Subscription is one live subscriber. Receive from C until it is closed.
type Subscription struct {
	C <-chan Event

	id      int
	channel string
	ch      chan Event
	bus     *Bus
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		history: make(map[string][]Event),
		subs:    make(map[int]*Subscription),
		logger:  logger,
	}
}

// Publish assigns the event an id and timestamp, records it for catchup and
// delivers it to current subscribers of its channel.
func (b *Bus) Publish(channel, eventType string, payload map[string]any) Event {
	b.mu.Lock()
	b.seq++
	ev := Event{
		ID:        b.seq,
		Channel:   channel,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	ring := append(b.history[channel], ev)
	if len(ring) > historyLimit {
		ring = ring[len(ring)-historyLimit:]
	}
	b.history[channel] = ring

	targets := make([]*Subscription, 0, 4)
	for _, sub := range b.subs {
		if sub.channel == channel {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"channel", channel, "event_id", ev.ID, "type", eventType)
		}
	}
	return ev
}

// Subscribe registers a subscriber for one channel.
func (b *Bus) Subscribe(channel string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, defaultSubscriberBuffer)
	sub := &Subscription{
		C:       ch,
		id:      b.nextSub,
		channel: channel,
		ch:      ch,
		bus:     b,
	}
	b.subs[sub.id] = sub
	b.nextSub++
	return sub
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Since returns the channel's retained events with id > sinceID, oldest
// first. overflow is true when older events were already evicted, meaning the
// caller may have missed more than what is returned.
func (b *Bus) Since(channel string, sinceID int64) (evs []Event, overflow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.history[channel]
	if len(ring) > 0 && sinceID > 0 && ring[0].ID > sinceID+1 {
		overflow = true
	}
	for _, ev := range ring {
		if ev.ID > sinceID {
			evs = append(evs, ev)
		}
	}
	return evs, overflow
}

// SubscriberCount returns the number of live subscribers for a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subs {
		if sub.channel == channel {
			n++
		}
	}
	return n
}
