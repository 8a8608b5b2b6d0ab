// Package ledger implements a read-only balance projection over the chain
// and pending pool. It is not part of the consensus core: nothing in
// validation ever consults it, and it holds no state that appendBlock or
// replaceChain could disagree with. This is a derived read, not a
// validated ledger of record, and no UTXO set backs it.
package ledger

import (
	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// Info is the projected balance for one identity: net balance plus the
// gross amounts sent and received, so a caller can distinguish "never
// transacted" from "sent everything it received".
type Info struct {
	Balance  int64
	Sent     uint64
	Received uint64
}

// ChainAPI is the narrow surface Ledger needs from Blockchain: the
// confirmed chain and the pending pool, both read-only.
type ChainAPI interface {
	Snapshot() []database.Block
	PendingEntries() []entry.Entry
}

// Ledger projects account balances by replaying every entry's from/to/amount
// across the chain, optionally including the pending pool.
type Ledger struct {
	chain ChainAPI
}

// New constructs a Ledger reading from chain.
func New(chain ChainAPI) *Ledger {
	return &Ledger{chain: chain}
}

func apply(balances map[string]Info, e entry.Entry) {
	if e.From != "" {
		info := balances[e.From]
		info.Sent += e.Amount
		info.Balance -= int64(e.Amount)
		balances[e.From] = info
	}

	if e.To != "" {
		info := balances[e.To]
		info.Received += e.Amount
		info.Balance += int64(e.Amount)
		balances[e.To] = info
	}
}

// Balance returns the projected balance for key, replaying confirmed
// entries and, if includePending, the pending pool on top.
func (l *Ledger) Balance(key string, includePending bool) Info {
	return l.All(includePending)[key]
}

// All returns the projected balance for every identity that appears as a
// sender or recipient anywhere in the chain (and, if includePending, the
// pool).
func (l *Ledger) All(includePending bool) map[string]Info {
	balances := make(map[string]Info)

	for _, block := range l.chain.Snapshot() {
		for _, e := range block.Entries() {
			apply(balances, e)
		}
	}

	if includePending {
		for _, e := range l.chain.PendingEntries() {
			apply(balances, e)
		}
	}

	return balances
}
