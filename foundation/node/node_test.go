package node_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/blockchain/signature"
	"github.com/meshchain/ledger/foundation/node"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func newTestNode(t *testing.T, id string, minEntries int, seedPeers []string) (*node.Node, string) {
	t.Helper()

	cfg := node.Config{
		Identity: node.Identity{
			ID:           id,
			OwnerAddress: id + "-owner",
		},
		GenesisConfig: genesis.Config{
			BlockchainName: "test",
			Timestamp:      1_700_000_000_000,
			Entries:        "Genesis Block",
			Difficulty:     1,
		},
		Difficulty:         1,
		MinDifficulty:      1,
		FixedReward:        50,
		MinEntriesPerBlock: minEntries,
		StoragePath:        filepath.Join(t.TempDir(), "chain.db"),
		SeedPeers:          seedPeers,
	}

	n := node.New(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		n.HandleWS(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	if err := n.Start(); err != nil {
		t.Fatalf("\t%s\tShould be able to start the node: %s", failed, err)
	}
	t.Cleanup(n.Shutdown)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return n, wsURL
}

func Test_FreshGenesis(t *testing.T) {
	t.Log("Given the need to construct a genesis block on a node with no prior storage.")

	n, _ := newTestNode(t, "nodeA", 2, nil)

	tip := n.Chain.Tip()
	if tip.Index != 0 {
		t.Fatalf("\t%s\tShould have a chain of height 0, got %d.", failed, tip.Index)
	}
	if tip.PreviousHash != "0" {
		t.Fatalf("\t%s\tShould have previousHash \"0\", got %s.", failed, tip.PreviousHash)
	}
	if !strings.HasPrefix(tip.Hash, "0") {
		t.Fatalf("\t%s\tShould have a hash carrying the difficulty prefix, got %s.", failed, tip.Hash)
	}
	t.Logf("\t%s\tShould construct a byte-identical genesis at height 0.", success)
}

func signedEntry(t *testing.T, from signature.PrivateKey, to string, amount uint64) entry.Entry {
	t.Helper()

	e, err := entry.New(from.PublicKey(), to, amount, "crypto", nil)
	if err != nil {
		t.Fatalf("constructing entry: %s", err)
	}

	signed, err := e.Sign(from)
	if err != nil {
		t.Fatalf("signing entry: %s", err)
	}

	return signed
}

func Test_MineFirstBlock(t *testing.T) {
	t.Log("Given the need to mine a block once the entry threshold is crossed.")

	n, _ := newTestNode(t, "nodeA", 2, nil)

	pkA, _ := signature.GenerateKey()
	pkB, _ := signature.GenerateKey()

	e1 := signedEntry(t, pkA, pkB.PublicKey(), 10)
	e2 := signedEntry(t, pkB, pkA.PublicKey(), 5)

	if err := n.Chain.SubmitEntry(e1); err != nil {
		t.Fatalf("\t%s\tShould accept entry 1: %s", failed, err)
	}
	if err := n.Chain.SubmitEntry(e2); err != nil {
		t.Fatalf("\t%s\tShould accept entry 2: %s", failed, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && n.Chain.Height() < 1 {
		time.Sleep(20 * time.Millisecond)
	}

	if n.Chain.Height() != 1 {
		t.Fatalf("\t%s\tShould have mined a block, tip height is %d.", failed, n.Chain.Height())
	}
	t.Logf("\t%s\tShould have mined a block once the pool crossed threshold.", success)

	tip := n.Chain.Tip()
	genesisBlock, _ := n.Chain.GetByIndex(0)
	if tip.PreviousHash != genesisBlock.Hash {
		t.Fatalf("\t%s\tShould link the new block to genesis.", failed)
	}
	t.Logf("\t%s\tShould link the new block to genesis.", success)

	if len(n.Chain.PendingEntries()) != 0 {
		t.Fatalf("\t%s\tShould have pruned both entries from the pool, got %d remaining.", failed, len(n.Chain.PendingEntries()))
	}
	t.Logf("\t%s\tShould have pruned both entries from the pool.", success)
}

func Test_TwoNodeEntryGossip(t *testing.T) {
	t.Log("Given the need to propagate a submitted entry across a connected mesh.")

	nodeA, urlA := newTestNode(t, "nodeA", 100, nil)
	nodeB, _ := newTestNode(t, "nodeB", 100, nil)

	if err := nodeB.Peer.Dial(urlA); err != nil {
		t.Fatalf("\t%s\tShould be able to dial nodeA: %s", failed, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && nodeA.Peer.PeerCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	pkA, _ := signature.GenerateKey()
	pkB, _ := signature.GenerateKey()
	e := signedEntry(t, pkA, pkB.PublicKey(), 7)

	if err := nodeA.Chain.SubmitEntry(e); err != nil {
		t.Fatalf("\t%s\tShould accept the entry on nodeA: %s", failed, err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := nodeB.Chain.GetEntryByID(e.EntryID); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := nodeB.Chain.GetEntryByID(e.EntryID); !ok {
		t.Fatalf("\t%s\tShould have gossiped the entry to nodeB.", failed)
	}
	t.Logf("\t%s\tShould have gossiped the entry to nodeB.", success)
}
