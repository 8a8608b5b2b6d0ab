// Package incentive implements the reward scheme credited to whoever mined
// a block once it is confirmed deep enough in the chain. It is
// the other half of the pluggable-rule-set story alongside consensus: the
// provided variant is a fixed, delayed reward, but Blockchain only ever
// talks to the Incentive interface.
package incentive

import (
	"fmt"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

// EventHandler defines a function that is called to report incentive
// processing.
type EventHandler func(v string, args ...any)

// ChainAPI is the narrow surface Incentive needs from Blockchain: look up a
// committed block by height, and queue a new entry for future inclusion.
// Incentive never mutates the chain or the pool directly.
type ChainAPI interface {
	BlockAt(index uint64) (database.Block, bool)
	SubmitEntry(e entry.Entry) error
}

// Incentive is the narrow surface Blockchain depends on to reward block
// creators. It is called once per successful local block commit.
type Incentive interface {
	// Process is invoked with the height of the block just committed
	// locally. It decides whether a reward is now due and, if so, queues
	// the reward entry via ChainAPI.
	Process(height uint64) error
}

// =============================================================================

// confirmationLag is how many blocks must separate the rewarded block from
// the tip before its creator is paid, deep enough that a short-lived fork
// reorg is unlikely to un-mine the rewarded block.
const confirmationLag = 6

// minRewardHeight is the lowest commit height at which a reward can be due:
// the block being rewarded (height - confirmationLag) must be at least 1,
// since the genesis block is never rewarded.
const minRewardHeight = confirmationLag + 1

// Delayed is the provided Incentive variant: on every local commit at
// height H >= minRewardHeight, it credits fixedReward to the creator of the
// block at height H-confirmationLag.
type Delayed struct {
	chain       ChainAPI
	fixedReward uint64
	ev          EventHandler
}

// New constructs the delayed-reward incentive variant.
func New(chain ChainAPI, fixedReward uint64, ev EventHandler) *Delayed {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	return &Delayed{
		chain:       chain,
		fixedReward: fixedReward,
		ev:          ev,
	}
}

// Process credits the creator of the block confirmationLag behind height,
// if height is deep enough for a reward to be due yet. The reward enters
// the system as an ordinary sentinel entry, signature-exempt, and is
// included in some future block via the normal mining path — it does not
// mutate the chain or any balance directly.
func (d *Delayed) Process(height uint64) error {
	if height < minRewardHeight {
		d.ev("incentive: Process: height[%d] below minimum[%d], no reward due", height, minRewardHeight)
		return nil
	}

	rewardedHeight := height - confirmationLag
	block, ok := d.chain.BlockAt(rewardedHeight)
	if !ok {
		return fmt.Errorf("incentive: block at height %d not found", rewardedHeight)
	}

	e, err := entry.New(signature.IdentityIncentive, block.OwnerAddress, d.fixedReward, "incentive", nil)
	if err != nil {
		return fmt.Errorf("incentive: constructing reward entry: %w", err)
	}

	d.ev("incentive: Process: crediting owner[%s] reward[%d] for block[%d]", block.OwnerAddress, d.fixedReward, rewardedHeight)

	return d.chain.SubmitEntry(e)
}
