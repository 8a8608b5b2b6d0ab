package chain

import (
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// Location identifies where a query found an entry.
type Location int

const (
	// LocationNotFound means the entry id is unknown to this node.
	LocationNotFound Location = iota

	// LocationPending means the entry is buffered in the pool, not yet in
	// any block.
	LocationPending

	// LocationConfirmed means the entry was found inside a committed block.
	LocationConfirmed
)

// Validity is the tri-state result of checking an entry's hash and
// signature. GetEntryByID leaves it Unknown, so a plain lookup never pays
// for a check nobody asked for; the on-demand check is Validate, which
// reports its result as a plain bool rather than as a Validity.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

// EntryView is a read-only, point-in-time view of an entry and where it was
// found. It never mutates the underlying stored entry.
type EntryView struct {
	Entry      entry.Entry
	Location   Location
	BlockIndex uint64 // meaningful only when Location == LocationConfirmed
	Validity   Validity
}

// =============================================================================

// Height returns the index of the current tip.
func (bc *Blockchain) Height() uint64 {
	return bc.Tip().Index
}

// Tip returns the current last block in the chain.
func (bc *Blockchain) Tip() database.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	return bc.chain[len(bc.chain)-1]
}

// Snapshot returns a copy of the full chain, in order.
func (bc *Blockchain) Snapshot() []database.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	out := make([]database.Block, len(bc.chain))
	copy(out, bc.chain)
	return out
}

// GetByIndex returns the block at index, if present.
func (bc *Blockchain) GetByIndex(index uint64) (database.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if index >= uint64(len(bc.chain)) {
		return database.Block{}, false
	}
	return bc.chain[index], true
}

// BlockAt satisfies incentive.ChainAPI; it is an alias of GetByIndex.
func (bc *Blockchain) BlockAt(index uint64) (database.Block, bool) {
	return bc.GetByIndex(index)
}

// GetByHash returns the first block whose hash matches hash, if any.
func (bc *Blockchain) GetByHash(hash string) (database.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for _, block := range bc.chain {
		if block.Hash == hash {
			return block, true
		}
	}
	return database.Block{}, false
}

// GetLatest returns the last n blocks, oldest first. If n exceeds the
// chain's length, the whole chain is returned.
func (bc *Blockchain) GetLatest(n int) []database.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > len(bc.chain) {
		n = len(bc.chain)
	}

	start := len(bc.chain) - n
	out := make([]database.Block, n)
	copy(out, bc.chain[start:])
	return out
}

// GetRange returns the half-open range [start, start+limit) of blocks.
func (bc *Blockchain) GetRange(start, limit int) []database.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if start < 0 || start >= len(bc.chain) || limit <= 0 {
		return nil
	}

	end := start + limit
	if end > len(bc.chain) {
		end = len(bc.chain)
	}

	out := make([]database.Block, end-start)
	copy(out, bc.chain[start:end])
	return out
}

// ValidateChain independently re-validates the full local chain.
func (bc *Blockchain) ValidateChain() database.ValidationReport {
	return database.ValidateChain(bc.Snapshot())
}

// =============================================================================

// PendingEntries returns a snapshot of the entries currently buffered in
// the pool.
func (bc *Blockchain) PendingEntries() []entry.Entry {
	return bc.pool.Pending()
}

// GetEntriesByKey returns every entry, pending or confirmed, where key
// appears as either From or To.
func (bc *Blockchain) GetEntriesByKey(key string) []entry.Entry {
	var out []entry.Entry

	for _, block := range bc.Snapshot() {
		for _, e := range block.Entries() {
			if e.From == key || e.To == key {
				out = append(out, e)
			}
		}
	}

	for _, e := range bc.pool.Pending() {
		if e.From == key || e.To == key {
			out = append(out, e)
		}
	}

	return out
}

// GetEntryByID looks for an entry with the given id, first among confirmed
// blocks, then in the pending pool.
func (bc *Blockchain) GetEntryByID(entryID string) (EntryView, bool) {
	for _, block := range bc.Snapshot() {
		for _, e := range block.Entries() {
			if e.EntryID == entryID {
				return EntryView{Entry: e, Location: LocationConfirmed, BlockIndex: block.Index}, true
			}
		}
	}

	if e, ok := bc.pool.Get(entryID); ok {
		return EntryView{Entry: e, Location: LocationPending}, true
	}

	return EntryView{}, false
}

// Validate re-checks entryID's hash and signature on demand. ok is false if
// no entry with that id is known to this node, pending or confirmed.
func (bc *Blockchain) Validate(entryID string) (valid bool, ok bool) {
	view, found := bc.GetEntryByID(entryID)
	if !found {
		return false, false
	}

	return view.Entry.Validate(time.Now()) == nil, true
}
