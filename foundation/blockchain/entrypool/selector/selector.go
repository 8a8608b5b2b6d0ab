// Package selector provides pluggable strategies for choosing which pending
// entries EntryPool hands to the miner. Block construction requires
// insertion order, so the only strategy wired in by default is FIFO; the
// seam exists so a future strategy can be added without changing EntryPool.
package selector

import (
	"fmt"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// StrategyFIFO selects entries in the order they were accepted into the
// pool, unmodified. It is the only strategy that preserves the ordering
// block construction requires.
const StrategyFIFO = "fifo"

// Func selects up to limit entries from entries, in whatever order the
// strategy defines. A limit of -1 means "all of them". Every strategy MUST
// preserve insertion order among the entries it keeps, since consensus
// hashing depends on the resulting order being reproducible from the same
// pool state.
type Func func(entries []entry.Entry, limit int) []entry.Entry

var strategies = map[string]Func{
	StrategyFIFO: fifoSelect,
}

// Retrieve returns the named strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("selector strategy %q does not exist", strategy)
	}

	return fn, nil
}

// fifoSelect returns up to limit entries, in their given order.
func fifoSelect(entries []entry.Entry, limit int) []entry.Entry {
	if limit < 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]entry.Entry, limit)
	copy(out, entries[:limit])
	return out
}
