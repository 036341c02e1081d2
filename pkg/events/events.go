// Package events carries cover lifecycle notifications from the
// convergence pipeline to interested consumers (websocket clients,
// catalog refresh hooks). A convergence publishes at most one event.
package events

import (
	"sync"
	"time"

	"github.com/pagebound/jacket/util/log"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing events rather than
// stalling the publisher.
const subscriberBuffer = 16

// CoverUpdated announces that a book's cover settled on a new location.
type CoverUpdated struct {
	Fingerprint string    `json:"fingerprint"`
	CatalogID   string    `json:"catalog_id,omitempty"`
	Location    string    `json:"location"`
	Provider    string    `json:"provider"`
	At          time.Time `json:"at"`
}

// Bus is the publishing side of the event stream.
type Bus interface {
	Publish(ev CoverUpdated)
}

// Broker fans events out to any number of subscribers. Publish never
// blocks; slow subscribers drop events.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan CoverUpdated]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan CoverUpdated]struct{})}
}

// Subscribe registers a new consumer. The returned cancel func removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe() (<-chan CoverUpdated, func()) {
	ch := make(chan CoverUpdated, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has room for it.
func (b *Broker) Publish(ev CoverUpdated) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warnf("events: dropping cover update for %s, subscriber not keeping up", ev.Fingerprint)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
