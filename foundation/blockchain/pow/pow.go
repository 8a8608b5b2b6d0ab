// Package pow implements proof-of-work mining: brute-force nonce search for
// a block hash with the required count of leading hex zeros, with
// cooperative cancellation so a mining operation can be abandoned the
// instant a peer wins the race.
package pow

import (
	"strings"

	"github.com/meshchain/ledger/foundation/blockchain/database"
)

// yieldEvery is how many hash attempts are tried between cooperative checks
// of the cancellation flag, so a cancel is observed with sub-second latency
// without paying a function-call tax on every single attempt.
const yieldEvery = 1_000

// EventHandler defines a function that is called to report mining progress.
type EventHandler func(v string, args ...any)

// CancelFlag is a one-way, concurrency-safe signal a mining operation polls
// at each cooperative yield point. Once Set is called, the next yield
// observes it and Mine returns Cancelled.
type CancelFlag struct {
	cancel chan struct{}
}

// NewCancelFlag constructs a flag that has not yet been signaled.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{cancel: make(chan struct{})}
}

// Set signals cancellation. It is safe to call more than once.
func (f *CancelFlag) Set() {
	select {
	case <-f.cancel:
	default:
		close(f.cancel)
	}
}

// IsSet reports whether Set has been called.
func (f *CancelFlag) IsSet() bool {
	select {
	case <-f.cancel:
		return true
	default:
		return false
	}
}

// =============================================================================

// Outcome reports whether mining found a solution or was cancelled first.
type Outcome struct {
	Block     database.Block
	Cancelled bool
}

// Mine increments block.Nonce from zero, recomputing the hash at every
// step, until the hash carries block.Difficulty leading hex zeros or the
// cancel flag is observed. The cancellation check happens every yieldEvery
// attempts so the caller's cancel-flag write is seen promptly.
func Mine(block database.Block, cancel *CancelFlag, ev EventHandler) (Outcome, error) {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("pow: Mine: started: blk[%d] difficulty[%d]", block.Index, block.Difficulty)
	defer ev("pow: Mine: completed: blk[%d]", block.Index)

	block.Nonce = 0

	var attempts uint64
	for {
		if attempts%yieldEvery == 0 && cancel.IsSet() {
			ev("pow: Mine: cancelled: blk[%d] attempts[%d]", block.Index, attempts)
			return Outcome{Cancelled: true}, nil
		}

		hash, err := block.ComputeHash()
		if err != nil {
			return Outcome{}, err
		}

		if IsSolved(block.Difficulty, hash) {
			block.Hash = hash
			ev("pow: Mine: solved: blk[%d] hash[%s] attempts[%d]", block.Index, hash, attempts)
			return Outcome{Block: block}, nil
		}

		block.Nonce++
		attempts++
	}
}

// IsSolved reports whether hash carries difficulty leading hex zeros.
func IsSolved(difficulty uint, hash string) bool {
	if uint(len(hash)) < difficulty {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}
