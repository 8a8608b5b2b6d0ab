// Package entrypool implements the mutable buffer of pending, validated
// entries awaiting inclusion in a block. It deduplicates by
// entry id, validates hash/signature/timestamp freshness on the way in,
// preserves insertion order for deterministic block construction, and
// triggers block creation once the configured threshold is crossed.
package entrypool

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/entrypool/selector"
)

// EventHandler defines a function that is called to report pool activity.
type EventHandler func(v string, args ...any)

// ChainAPI is the narrow surface EntryPool needs from Blockchain: whether a
// block is already being mined, and how to kick off mining with a snapshot
// of the pool once the threshold is crossed. EntryPool never appends to the
// chain itself.
type ChainAPI interface {
	BlockCreationInProgress() bool
	AddBlock(entries []entry.Entry)
}

// EntryPool buffers pending entries, keyed by entry id, in acceptance order.
type EntryPool struct {
	mu                 sync.Mutex
	pool               map[string]entry.Entry
	order              []string
	minEntriesPerBlock int
	selectFn           selector.Func
	chain              ChainAPI
	ev                 EventHandler
}

// New constructs an EntryPool using the default FIFO selection strategy.
func New(minEntriesPerBlock int, chain ChainAPI, ev EventHandler) *EntryPool {
	p, _ := NewWithStrategy(minEntriesPerBlock, selector.StrategyFIFO, chain, ev)
	return p
}

// NewWithStrategy constructs an EntryPool using the named, pluggable
// entry-selection strategy.
func NewWithStrategy(minEntriesPerBlock int, strategy string, chain ChainAPI, ev EventHandler) (*EntryPool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	if ev == nil {
		ev = func(string, ...any) {}
	}

	return &EntryPool{
		pool:               make(map[string]entry.Entry),
		minEntriesPerBlock: minEntriesPerBlock,
		selectFn:           selectFn,
		chain:              chain,
		ev:                 ev,
	}, nil
}

// Submit assigns an entry id if absent, skips silently if the id is already
// present, validates the entry, and on success inserts it and checks the
// mining-trigger rule. It reports whether the entry was accepted.
func (p *EntryPool) Submit(e entry.Entry) (entry.Entry, bool, error) {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}

	p.mu.Lock()
	_, exists := p.pool[e.EntryID]
	p.mu.Unlock()
	if exists {
		return entry.Entry{}, false, nil
	}

	if err := p.Validate(e); err != nil {
		p.ev("entrypool: Submit: rejected entry[%s]: %s", e.EntryID, err)
		return entry.Entry{}, false, err
	}

	p.mu.Lock()
	p.pool[e.EntryID] = e
	p.order = append(p.order, e.EntryID)
	size := len(p.order)
	p.mu.Unlock()

	p.ev("entrypool: Submit: accepted entry[%s]: pool size[%d]", e.EntryID, size)

	p.triggerMiningIfReady(size)

	return e, true, nil
}

// Validate checks the entry's hash, signature (unless the sender is a
// sentinel identity), and timestamp freshness. It does not check for
// duplication; Submit is responsible for that.
func (p *EntryPool) Validate(e entry.Entry) error {
	return e.Validate(time.Now().UTC())
}

// triggerMiningIfReady invokes ChainAPI.AddBlock with a snapshot of the
// pool if size has crossed minEntriesPerBlock and no block creation is
// already in progress.
func (p *EntryPool) triggerMiningIfReady(size int) {
	if size < p.minEntriesPerBlock {
		return
	}
	if p.chain.BlockCreationInProgress() {
		return
	}

	p.ev("entrypool: triggerMiningIfReady: threshold crossed: pool size[%d] >= min[%d]", size, p.minEntriesPerBlock)
	p.chain.AddBlock(p.Pending())
}

// Pending returns a snapshot of the current entries, in insertion order,
// filtered through the configured selection strategy.
func (p *EntryPool) Pending() []entry.Entry {
	p.mu.Lock()
	ordered := make([]entry.Entry, 0, len(p.order))
	for _, id := range p.order {
		ordered = append(ordered, p.pool[id])
	}
	p.mu.Unlock()

	return p.selectFn(ordered, -1)
}

// Count returns the current number of pending entries.
func (p *EntryPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.order)
}

// Get returns the pending entry with the given id, if any.
func (p *EntryPool) Get(entryID string) (entry.Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.pool[entryID]
	return e, ok
}

// Prune removes every entry whose id appears in block's data. It is a
// no-op for the genesis block, which carries no entries.
func (p *EntryPool) Prune(block database.Block) {
	if block.Data.IsGenesis() {
		return
	}

	committed := make(map[string]struct{}, len(block.Entries()))
	for _, e := range block.Entries() {
		committed[e.EntryID] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.order[:0:0]
	for _, id := range p.order {
		if _, done := committed[id]; done {
			delete(p.pool, id)
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
}

// OnNewPeerChain prunes the pool against every block in a chain accepted
// from a peer.
func (p *EntryPool) OnNewPeerChain(chain []database.Block) {
	for _, block := range chain {
		p.Prune(block)
	}
}

// OnBlockCreationEnded re-checks the mining-trigger rule after a mining
// lifecycle finishes, in case the pool is still over threshold (e.g. new
// entries arrived while mining was in progress). payload is the mined
// block or nil; it is unused here beyond signalling that a cycle ended.
func (p *EntryPool) OnBlockCreationEnded(payload any) {
	p.triggerMiningIfReady(p.Count())
}

// =============================================================================

// ErrEntryNotFound describes a lookup of an entry id the pool does not
// hold. Get reports that case with its bool result; nothing in this
// package returns this error.
var ErrEntryNotFound = fmt.Errorf("entry not found in pool")
