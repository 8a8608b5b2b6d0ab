// Package chain implements Blockchain, the orchestrator that owns the
// chain and the entry pool, mediates the four pluggable services through a
// reactive event bus, and enforces the concurrency invariants that keep
// local mining, peer block arrival, and peer chain replacement mutually
// consistent.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meshchain/ledger/foundation/blockchain/consensus"
	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/entrypool"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/blockchain/incentive"
	"github.com/meshchain/ledger/foundation/blockchain/storage"
	"github.com/meshchain/ledger/foundation/events"
)

// EventHandler defines a function that is called when events occur in the
// processing of entries and blocks.
type EventHandler func(v string, args ...any)

// Event names published on the Blockchain's bus. Subscribers
// are wired in at construction time; no subscriber is added or removed
// after Start.
const (
	EventChainLoaded         = "chainLoaded"
	EventGenesisCreated      = "genesisCreated"
	EventEntryAdded          = "entryAdded"
	EventBlockCreationStarted = "blockCreationStarted"
	EventBlockCreated        = "blockCreated"
	EventIncentiveProcessed  = "incentiveProcessed"
	EventBlockCreationEnded  = "blockCreationEnded"
	EventPeerBlockAccepted   = "peerBlockAccepted"
	EventPeerChainAccepted   = "peerChainAccepted"
)

// Errors returned by the public operations.
var (
	// ErrChainReplaceInProgress is returned when ReplaceChain is called
	// while another ReplaceChain call is already running.
	ErrChainReplaceInProgress = errors.New("chain: a chain replacement is already in progress")

	// ErrChainNotLonger is returned when a candidate chain is not strictly
	// longer than the local chain.
	ErrChainNotLonger = errors.New("chain: candidate chain is not longer than the local chain")

	// ErrNotStarted describes an operation attempted before Start has run.
	// No operation in this package returns it.
	ErrNotStarted = errors.New("chain: blockchain has not been started")
)

// Config carries the values Blockchain needs beyond its injected services.
type Config struct {
	NodeID        string
	OwnerAddress  string
	GenesisConfig genesis.Config
	FixedReward   uint64
	MinEntries    int
	EvHandler     EventHandler
}

// Blockchain is the composition root's core: it owns the chain vector and
// the entry pool exclusively. Incentive and EntryPool hold a back-reference
// to it through the narrow ChainAPI interfaces they each declare, rather
// than touching the chain directly; Consensus holds no reference to it.
type Blockchain struct {
	nodeID       string
	ownerAddress string
	genesisCfg   genesis.Config

	consensus consensus.Consensus
	incentive incentive.Incentive
	storage   storage.Storage
	pool      *entrypool.EntryPool
	bus       *events.Bus
	worker    *miningWorker
	ev        EventHandler

	mu    sync.Mutex
	chain []database.Block

	blockCreationInProgress bool
	processingOwnBlock      bool
	processingPeerBlock     bool
	processingPeerChain     bool
}

// New constructs a Blockchain wired to cons and store, with its own
// internal EntryPool and the delayed-reward Incentive variant.
func New(cfg Config, cons consensus.Consensus, store storage.Storage) *Blockchain {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	bc := &Blockchain{
		nodeID:       cfg.NodeID,
		ownerAddress: cfg.OwnerAddress,
		genesisCfg:   cfg.GenesisConfig,
		consensus:    cons,
		storage:      store,
		bus:          events.NewBus(),
		ev:           ev,
	}

	bc.incentive = incentive.New(bc, cfg.FixedReward, func(v string, args ...any) {
		ev("incentive: "+v, args...)
	})

	bc.pool = entrypool.New(cfg.MinEntries, bc, func(v string, args ...any) {
		ev("entrypool: "+v, args...)
	})

	bc.wireSubscriptions()
	bc.worker = newMiningWorker(bc)

	return bc
}

// Bus exposes the event bus so Node and debug tooling can subscribe.
func (bc *Blockchain) Bus() *events.Bus {
	return bc.bus
}

// wireSubscriptions registers the plug-in reactions: EntryPool prunes on
// commit and peer-accept, Consensus cancels mining on peer-accept.
func (bc *Blockchain) wireSubscriptions() {
	bc.bus.Subscribe(EventBlockCreated, func(payload any) {
		if block, ok := payload.(database.Block); ok {
			bc.pool.Prune(block)
		}
	})

	bc.bus.Subscribe(EventPeerBlockAccepted, func(payload any) {
		bc.consensus.CancelMining()
		if block, ok := payload.(database.Block); ok {
			bc.pool.Prune(block)
		}
	})

	bc.bus.Subscribe(EventPeerChainAccepted, func(payload any) {
		bc.consensus.CancelMining()
		if newChain, ok := payload.([]database.Block); ok {
			bc.pool.OnNewPeerChain(newChain)
		}
	})

	bc.bus.Subscribe(EventBlockCreationEnded, func(payload any) {
		bc.pool.OnBlockCreationEnded(payload)
	})
}

// =============================================================================

// Start loads the chain from storage, or constructs and persists the
// genesis block if none is found.
func (bc *Blockchain) Start() error {
	loaded, err := bc.storage.LoadChain()
	if err == nil {
		bc.mu.Lock()
		bc.chain = loaded
		bc.mu.Unlock()

		bc.ev("chain: Start: loaded chain: height[%d]", loaded[len(loaded)-1].Index)
		bc.bus.Publish(EventChainLoaded, loaded)
		return nil
	}

	bc.ev("chain: Start: load failed, constructing genesis: %s", err)

	genesisBlock, gerr := bc.consensus.CreateGenesis(bc.genesisCfg)
	if gerr != nil {
		return fmt.Errorf("chain: Start: creating genesis: %w", gerr)
	}

	if aerr := bc.storage.AppendBlock(genesisBlock); aerr != nil {
		return fmt.Errorf("chain: Start: persisting genesis: %w", aerr)
	}

	bc.mu.Lock()
	bc.chain = []database.Block{genesisBlock}
	bc.mu.Unlock()

	bc.bus.Publish(EventGenesisCreated, genesisBlock)

	return nil
}

// Shutdown stops the background mining worker.
func (bc *Blockchain) Shutdown() {
	bc.worker.shutdown()
}

// =============================================================================

// SubmitEntry forwards e to the entry pool and emits entryAdded on
// acceptance.
func (bc *Blockchain) SubmitEntry(e entry.Entry) error {
	accepted, ok, err := bc.pool.Submit(e)
	if err != nil {
		return err
	}
	if ok {
		bc.bus.Publish(EventEntryAdded, accepted)
	}
	return nil
}

// =============================================================================

// BlockCreationInProgress reports whether a local mining cycle is already
// running, satisfying entrypool.ChainAPI.
func (bc *Blockchain) BlockCreationInProgress() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	return bc.blockCreationInProgress
}

// AddBlock attempts to start mining a block carrying entries. It is a
// no-op if block creation is already in progress. The actual mining runs
// on the dedicated worker goroutine so the caller, typically EntryPool
// reacting to the pool crossing its threshold, never blocks.
func (bc *Blockchain) AddBlock(entries []entry.Entry) {
	bc.mu.Lock()
	if bc.blockCreationInProgress {
		bc.mu.Unlock()
		return
	}
	bc.blockCreationInProgress = true
	bc.mu.Unlock()

	bc.worker.signalStartMining(entries)
}

// runBlockCreation always clears blockCreationInProgress and
// processingOwnBlock on exit and always emits blockCreationEnded, with the
// committed block or nil.
func (bc *Blockchain) runBlockCreation(entries []entry.Entry) {
	bc.bus.Publish(EventBlockCreationStarted, nil)

	var committed *database.Block

	defer func() {
		bc.mu.Lock()
		bc.blockCreationInProgress = false
		bc.processingOwnBlock = false
		bc.mu.Unlock()

		if committed != nil {
			bc.bus.Publish(EventBlockCreationEnded, *committed)
		} else {
			bc.bus.Publish(EventBlockCreationEnded, nil)
		}
	}()

	tip := bc.Tip()
	block, ok := bc.consensus.CreateBlock(tip.Index+1, database.NewEntriesData(entries), tip.Hash)
	if !ok {
		bc.ev("chain: runBlockCreation: mining cancelled or failed")
		return
	}

	bc.mu.Lock()
	if bc.processingPeerBlock || bc.processingPeerChain {
		bc.mu.Unlock()
		bc.ev("chain: runBlockCreation: own block superseded by peer activity, dropping")
		return
	}
	bc.processingOwnBlock = true
	bc.mu.Unlock()

	if err := bc.storage.AppendBlock(block); err != nil {
		bc.ev("chain: runBlockCreation: storage append failed: %s", err)
		return
	}

	bc.mu.Lock()
	bc.chain = append(bc.chain, block)
	bc.mu.Unlock()

	bc.bus.Publish(EventBlockCreated, block)
	committed = &block

	if err := bc.incentive.Process(block.Index); err != nil {
		bc.ev("chain: runBlockCreation: incentive: %s", err)
	}
	bc.bus.Publish(EventIncentiveProcessed, block)
}

// =============================================================================

// AddPeerBlock validates a block received from a peer and, if it is valid
// and no own-block finalization or peer-chain replacement is in flight,
// appends it and emits peerBlockAccepted.
func (bc *Blockchain) AddPeerBlock(block database.Block) error {
	bc.mu.Lock()
	if bc.processingPeerBlock {
		bc.mu.Unlock()
		return nil
	}
	bc.processingPeerBlock = true
	bc.mu.Unlock()

	defer func() {
		bc.mu.Lock()
		bc.processingPeerBlock = false
		bc.mu.Unlock()
	}()

	if err := bc.ValidateBlock(block); err != nil {
		return err
	}

	bc.mu.Lock()
	if bc.processingOwnBlock || bc.processingPeerChain {
		bc.mu.Unlock()
		bc.ev("chain: AddPeerBlock: deferred, own-block or peer-chain activity in flight")
		return nil
	}
	bc.mu.Unlock()

	if err := bc.storage.AppendBlock(block); err != nil {
		return fmt.Errorf("chain: AddPeerBlock: storage: %w", err)
	}

	bc.mu.Lock()
	bc.chain = append(bc.chain, block)
	bc.mu.Unlock()

	bc.bus.Publish(EventPeerBlockAccepted, block)

	return nil
}

// ValidateBlock requires block to be the immediate structural successor of
// the tip and to satisfy the consensus rule set.
func (bc *Blockchain) ValidateBlock(block database.Block) error {
	tip := bc.Tip()

	if err := database.ValidateLinkage(tip, block); err != nil {
		return err
	}

	return bc.consensus.ValidateBlockConsensus(block)
}

// =============================================================================

// ReplaceChain accepts newChain as the new local chain if it is strictly
// longer than the current chain and independently validates. It is
// serialized against itself and cancels any in-flight mining within its
// critical section.
func (bc *Blockchain) ReplaceChain(newChain []database.Block) error {
	bc.mu.Lock()
	if bc.processingPeerChain {
		bc.mu.Unlock()
		return ErrChainReplaceInProgress
	}
	bc.processingPeerChain = true
	bc.mu.Unlock()

	defer func() {
		bc.mu.Lock()
		bc.processingPeerChain = false
		bc.mu.Unlock()
	}()

	bc.consensus.CancelMining()

	bc.mu.Lock()
	currentLen := len(bc.chain)
	bc.mu.Unlock()

	if len(newChain) <= currentLen {
		return ErrChainNotLonger
	}

	report := database.ValidateChain(newChain)
	if !report.IsValid {
		return fmt.Errorf("chain: ReplaceChain: candidate chain failed structural validation: %v", report.Errors)
	}

	for _, block := range newChain {
		if err := bc.consensus.ValidateBlockConsensus(block); err != nil {
			return fmt.Errorf("chain: ReplaceChain: %w", err)
		}
	}

	if err := bc.storage.RewriteChain(newChain); err != nil {
		return fmt.Errorf("chain: ReplaceChain: storage: %w", err)
	}

	bc.mu.Lock()
	bc.chain = newChain
	bc.mu.Unlock()

	bc.bus.Publish(EventPeerChainAccepted, newChain)

	return nil
}
