// Package events provides two related but distinct facilities used by a
// node: Bus, a typed publish-subscribe surface the blockchain orchestrator
// uses to announce its lifecycle (chainLoaded, blockCreated,
// peerBlockAccepted, ...) to the plug-ins and the node that subscribe to it
// at wiring time, and Feed, a fan-out broadcaster of timestamped activity
// records consumed by the node's debug event-feed WebSocket.
package events

import "sync"

// Handler is called synchronously, in subscription order, whenever the named
// event is published. The payload is event-specific: the loaded or accepted
// chain for chainLoaded and peerChainAccepted, the entry for entryAdded, the
// block for the block events, nil for blockCreationStarted, and the mined
// block (or nil) for blockCreationEnded.
type Handler func(payload any)

// Bus is a synchronous publish-subscribe registry. The blockchain
// orchestrator is the sole publisher; EntryPool, Consensus, and Node are the
// subscribers wired in at construction time. Publish runs every
// subscriber for name in registration order on the caller's goroutine, so the
// ordering guarantees of a block-creation lifecycle (entryAdded,
// blockCreationStarted, blockCreated, incentiveProcessed, blockCreationEnded)
// fall out of the caller publishing them in that order — the bus itself adds
// no concurrency.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers fn to run whenever name is published. Subscriptions
// are expected to be set up once, at wiring time, before the blockchain
// starts publishing.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], fn)
}

// Publish invokes every handler registered for name, in subscription order,
// passing payload through unchanged.
func (b *Bus) Publish(name string, payload any) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[name]...)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
