package node

import (
	"fmt"
	"net/http"

	"github.com/meshchain/ledger/foundation/blockchain/chain"
	"github.com/meshchain/ledger/foundation/blockchain/consensus"
	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/blockchain/ledger"
	"github.com/meshchain/ledger/foundation/blockchain/peer"
	"github.com/meshchain/ledger/foundation/blockchain/storage"
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks, entries, and peer traffic.
type EventHandler func(v string, args ...any)

// Identity is the set of values a node presents to the mesh in every
// handshake, and stamps onto every block it mines.
type Identity struct {
	ID             string
	Label          string
	IP             string
	URL            string
	P2PPort        string
	WebServicePort string
	OwnerAddress   string
}

// Config carries everything New needs to build a Node: identity, the
// consensus/incentive/genesis parameters, storage location, and the seed
// peers to dial at startup.
type Config struct {
	Identity Identity

	GenesisConfig genesis.Config
	Difficulty    uint
	MinDifficulty uint
	FixedReward   uint64

	MinEntriesPerBlock int
	StoragePath        string

	SeedPeers []string

	EvHandler EventHandler
}

// Node is the composition root: it owns one Blockchain, one PeerService,
// and the read-only Ledger balance projection, and wires the Blockchain's
// event bus to the mesh so locally accepted entries and mined blocks are
// gossiped onward.
type Node struct {
	identity  Identity
	seedPeers []string

	Chain  *chain.Blockchain
	Peer   *peer.Service
	Ledger *ledger.Ledger

	ev EventHandler
}

// New constructs a Node with a file-backed store, the PoW consensus
// variant, and the delayed-reward incentive variant wired inside Chain.
func New(cfg Config) *Node {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	store := storage.NewFile(cfg.StoragePath)
	cons := consensus.New(cfg.Identity.ID, cfg.Identity.OwnerAddress, cfg.Difficulty, cfg.MinDifficulty, func(v string, args ...any) {
		ev("consensus: "+v, args...)
	})

	bc := chain.New(chain.Config{
		NodeID:        cfg.Identity.ID,
		OwnerAddress:  cfg.Identity.OwnerAddress,
		GenesisConfig: cfg.GenesisConfig,
		FixedReward:   cfg.FixedReward,
		MinEntries:    cfg.MinEntriesPerBlock,
		EvHandler:     chain.EventHandler(ev),
	}, cons, store)

	peerCfg := peer.Config{
		ID:             cfg.Identity.ID,
		Label:          cfg.Identity.Label,
		IP:             cfg.Identity.IP,
		URL:            cfg.Identity.URL,
		P2PPort:        cfg.Identity.P2PPort,
		WebServicePort: cfg.Identity.WebServicePort,
	}
	ps := peer.New(peerCfg, bc, func(v string, args ...any) {
		ev("peer: "+v, args...)
	})

	n := &Node{
		identity:  cfg.Identity,
		seedPeers: cfg.SeedPeers,
		Chain:     bc,
		Peer:      ps,
		Ledger:    ledger.New(bc),
		ev:        ev,
	}

	n.wireGossip()

	return n
}

// wireGossip rebroadcasts a locally accepted entry or locally mined block
// to the mesh. This is distinct from, and registered independently of, the
// subscriptions Chain wires internally for EntryPool and Consensus.
func (n *Node) wireGossip() {
	n.Chain.Bus().Subscribe(chain.EventEntryAdded, func(payload any) {
		if e, ok := payload.(entry.Entry); ok {
			n.Peer.BroadcastEntry(e)
		}
	})

	n.Chain.Bus().Subscribe(chain.EventBlockCreated, func(payload any) {
		if block, ok := payload.(database.Block); ok {
			n.Peer.BroadcastBlock(block)
		}
	})
}

// Start loads or creates the genesis chain and dials every configured seed
// peer once.
func (n *Node) Start() error {
	if err := n.Chain.Start(); err != nil {
		return fmt.Errorf("node: Start: %w", err)
	}

	n.Peer.Start(n.seedPeers)

	return nil
}

// Shutdown stops the mesh and the mining worker, in that order, so no new
// gossip can trigger mining after the worker has been told to stop.
func (n *Node) Shutdown() {
	n.Peer.Shutdown()
	n.Chain.Shutdown()
}

// GetIdentity returns the node's configured identity.
func (n *Node) GetIdentity() Identity {
	return n.identity
}

// HandleWS upgrades an inbound HTTP request into a mesh peer connection.
// Mount this at the node's configured p2p WebSocket endpoint.
func (n *Node) HandleWS(w http.ResponseWriter, r *http.Request) error {
	return n.Peer.HandleWS(w, r)
}
