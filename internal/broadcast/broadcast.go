// Package broadcast implements the SSE fan-out described in spec.md §4.12:
// JSON-encoded frames broadcast to every subscriber, each of which has its
// own capacity-100 channel. Slow subscribers get frames dropped rather than
// ever back-pressuring the producer.
package broadcast

import (
	"encoding/json"
	"sync"
)

const channelCapacity = 100

// Broadcaster fans a stream of JSON payloads out to subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan string]struct{}
	closed bool
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[chan string]struct{})}
}

// Subscribe registers a new subscriber and returns its receive channel plus
// an unsubscribe func. The channel is closed when the broadcaster shuts
// down or the subscriber unsubscribes.
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, channelCapacity)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Broadcast injects "type" into data's JSON object and sends the resulting
// frame to every subscriber. A lagged subscriber (its buffered channel
// full) silently drops the frame instead of blocking this call.
func (b *Broadcaster) Broadcast(eventType string, data any) {
	payload, err := encodeFrame(eventType, data)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- payload:
		default:
			// Subscriber is lagging; drop this frame for it.
		}
	}
}

// Close shuts down the broadcaster, closing every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan string]struct{})
}

func encodeFrame(eventType string, data any) (string, error) {
	var obj map[string]any

	switch v := data.(type) {
	case map[string]any:
		obj = make(map[string]any, len(v)+1)
		for k, val := range v {
			obj[k] = val
		}
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		obj = map[string]any{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			// data wasn't a JSON object (e.g. a scalar); wrap it instead.
			obj = map[string]any{"data": data}
		}
	}
	obj["type"] = eventType

	out, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
