package events

import "sync"

// Message pairs a topic with the payload that was published on it. Firehose
// subscribers receive these; topic subscribers get the bare payload.
type Message struct {
	Topic   Event
	Payload any
}

// Bus is an in-process broker for position lifecycle traffic. Publishing
// never blocks: a subscriber that falls behind misses messages instead of
// stalling the trading path.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
	all  []chan Message
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for a single topic. The returned function
// removes the listener and closes its channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs[e] {
			if c == ch {
				close(c)
				b.subs[e] = append(b.subs[e][:i], b.subs[e][i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a listener that sees every topic, labeled. The log
// sink and the event-stream endpoint use this.
func (b *Bus) SubscribeAll(buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	b.all = append(b.all, ch)

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.all {
			if c == ch {
				close(c)
				b.all = append(b.all[:i], b.all[i+1:]...)
				return
			}
		}
	}
}

// Publish fans the payload out to topic and firehose listeners. Full
// channels are skipped.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
		}
	}
	msg := Message{Topic: e, Payload: payload}
	for _, ch := range b.all {
		select {
		case ch <- msg:
		default:
		}
	}
}
