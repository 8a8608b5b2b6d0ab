package events

import (
	"fmt"
	"sync"
	"time"
)

// Activity is one timestamped line of a node's live activity feed: mining
// progress, consensus decisions, peer gossip — whatever the node's
// EventHandler callbacks report as they run.
type Activity struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Feed fans a stream of Activity records out to every subscriber currently
// watching, keyed by an arbitrary subscriber id (one per open debug
// WebSocket connection).
type Feed struct {
	subscribers map[string]chan Activity
	mu          sync.RWMutex
}

// NewFeed constructs an empty activity feed.
func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[string]chan Activity),
	}
}

// Close closes and removes every subscriber channel, signalling each
// watching WebSocket handler to stop.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
}

// Subscribe registers id as a new watcher and returns the channel it will
// receive Activity records on. Calling Subscribe again with an id already
// registered returns its existing channel.
func (f *Feed) Subscribe(id string) chan Activity {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, exists := f.subscribers[id]; exists {
		return ch
	}

	// A slow WebSocket write must not block Publish; this buffer gives a
	// lagging subscriber room before records start getting dropped.
	const feedBuffer = 100

	ch := make(chan Activity, feedBuffer)
	f.subscribers[id] = ch
	return ch
}

// Unsubscribe closes and removes id's channel.
func (f *Feed) Unsubscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, exists := f.subscribers[id]
	if !exists {
		return fmt.Errorf("events: subscriber %q does not exist", id)
	}

	delete(f.subscribers, id)
	close(ch)
	return nil
}

// Publish stamps message with the current time and fans it out to every
// subscriber. A subscriber that is not currently able to receive has the
// record dropped rather than stalling the publisher.
func (f *Feed) Publish(message string) {
	activity := Activity{Time: time.Now().UTC(), Message: message}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- activity:
		default:
		}
	}
}
