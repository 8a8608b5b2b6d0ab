// Package consensus defines the pluggable rule set for producing and
// validating blocks, and provides the proof-of-work variant that is the only
// one this module ships. Blockchain depends on the Consensus
// interface, never on the PoW type directly, so an alternative rule set
// (e.g. a future proof-of-authority variant) can be swapped in without
// touching the orchestrator.
package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/blockchain/pow"
)

// EventHandler defines a function that is called to report mining progress
// and consensus decisions.
type EventHandler func(v string, args ...any)

// Consensus is the narrow surface Blockchain depends on to create and
// validate blocks. It does not know about the chain, the entry pool, or
// storage; it only knows how to turn data into a block and how to judge one.
type Consensus interface {
	// CreateGenesis produces the deterministic block at index 0 from cfg.
	// Every node sharing the same cfg MUST produce a byte-identical result.
	CreateGenesis(cfg genesis.Config) (database.Block, error)

	// CreateBlock attempts to produce the block at index, carrying data,
	// linked to previousHash. It returns ok=false if mining was cancelled
	// before a solution was found.
	CreateBlock(index uint64, data database.BlockData, previousHash string) (database.Block, bool)

	// CancelMining signals any in-flight CreateBlock call to abandon its
	// search at the next cooperative yield.
	CancelMining()

	// ValidateBlockHash re-derives block's hash from its contents and
	// compares it against the stored value.
	ValidateBlockHash(block database.Block) error

	// ValidateBlockConsensus additionally enforces this rule set's
	// acceptance criteria — for PoW, the declared-difficulty leading-zero
	// prefix against both the block's own hash and the network minimum.
	ValidateBlockConsensus(block database.Block) error
}

// =============================================================================

// PoW is the proof-of-work Consensus variant: block creation is brute-force
// nonce search, and validation requires the resulting hash to carry the
// declared difficulty's leading hex zeros.
type PoW struct {
	nodeID        string
	ownerAddress  string
	minDifficulty uint
	difficulty    uint
	ev            EventHandler

	mu            sync.Mutex
	currentCancel *pow.CancelFlag
}

// New constructs a PoW consensus variant. nodeID and ownerAddress are
// stamped onto every block this node mines; difficulty is the puzzle
// difficulty this node mines at, and minDifficulty is the floor this node
// will accept from a peer's block regardless of what the peer declares: a
// malicious peer presenting difficulty=0 with any hash is rejected here
// rather than trusted.
func New(nodeID, ownerAddress string, difficulty, minDifficulty uint, ev EventHandler) *PoW {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	return &PoW{
		nodeID:        nodeID,
		ownerAddress:  ownerAddress,
		minDifficulty: minDifficulty,
		difficulty:    difficulty,
		ev:            ev,
	}
}

// CreateGenesis mines the block at index 0 from cfg. The mining cannot be
// cancelled — there is nothing racing the very first block. BlockCreator and
// OwnerAddress are always database.GenesisCreator, never a per-node identity,
// so every node on the mesh mines the same genesis block.
func (c *PoW) CreateGenesis(cfg genesis.Config) (database.Block, error) {
	block := database.Block{
		Index:        0,
		Timestamp:    cfg.Timestamp,
		PreviousHash: database.ZeroHash,
		BlockCreator: database.GenesisCreator,
		OwnerAddress: database.GenesisCreator,
		Data:         database.NewGenesisData(cfg.Entries),
		Difficulty:   cfg.Difficulty,
	}

	outcome, err := pow.Mine(block, pow.NewCancelFlag(), pow.EventHandler(c.ev))
	if err != nil {
		return database.Block{}, err
	}

	return outcome.Block, nil
}

// CreateBlock constructs a fresh PoW block tagged with this node's identity,
// records it as the in-flight mining block so CancelMining can reach it, and
// mines it. It clears the in-flight reference before returning.
func (c *PoW) CreateBlock(index uint64, data database.BlockData, previousHash string) (database.Block, bool) {
	cancel := pow.NewCancelFlag()

	c.mu.Lock()
	c.currentCancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.currentCancel = nil
		c.mu.Unlock()
	}()

	block := database.Block{
		Index:        index,
		Timestamp:    time.Now().UTC().UnixMilli(),
		PreviousHash: previousHash,
		BlockCreator: c.nodeID,
		OwnerAddress: c.ownerAddress,
		Data:         data,
		Difficulty:   c.difficulty,
	}

	outcome, err := pow.Mine(block, cancel, pow.EventHandler(c.ev))
	if err != nil {
		c.ev("consensus: CreateBlock: ERROR: %s", err)
		return database.Block{}, false
	}
	if outcome.Cancelled {
		return database.Block{}, false
	}

	return outcome.Block, true
}

// CancelMining sets the cancel flag on whichever block CreateBlock is
// currently mining, if any. It is a no-op if no mining is in flight.
func (c *PoW) CancelMining() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentCancel != nil {
		c.currentCancel.Set()
	}
}

// ValidateBlockHash re-derives block's hash and compares it to the stored
// value.
func (c *PoW) ValidateBlockHash(block database.Block) error {
	ok, err := block.RecomputeHash()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("block %d hash %s does not match its contents", block.Index, block.Hash)
	}

	return nil
}

// ValidateBlockConsensus checks hash self-consistency and, explicitly,
// that the hash carries the declared difficulty's leading hex zeros, and
// that the declared difficulty is not below this node's accepted minimum.
// Hash self-consistency alone is insufficient: it would let a peer declare
// difficulty=0 and present any hash at all.
func (c *PoW) ValidateBlockConsensus(block database.Block) error {
	if err := c.ValidateBlockHash(block); err != nil {
		return err
	}

	if block.Difficulty < c.minDifficulty {
		return fmt.Errorf("block %d declares difficulty %d below network minimum %d", block.Index, block.Difficulty, c.minDifficulty)
	}

	if !pow.IsSolved(block.Difficulty, block.Hash) {
		return fmt.Errorf("block %d hash %s does not carry %d leading zeros", block.Index, block.Hash, block.Difficulty)
	}

	return nil
}
