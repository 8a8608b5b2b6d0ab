package chain_test

import (
	"sync"
	"testing"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/chain"
	"github.com/meshchain/ledger/foundation/blockchain/consensus"
	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/genesis"
	"github.com/meshchain/ledger/foundation/blockchain/storage"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// memStorage is an in-memory Storage stub. RewriteChain optionally blocks on
// gate, letting a test hold ReplaceChain's critical section open.
type memStorage struct {
	mu    sync.Mutex
	chain []database.Block
	gate  chan struct{}
}

func (m *memStorage) AppendBlock(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = append(m.chain, block)
	return nil
}

func (m *memStorage) LoadChain() ([]database.Block, error) {
	return nil, storage.ErrEmptyChain
}

func (m *memStorage) RewriteChain(newChain []database.Block) error {
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = append([]database.Block(nil), newChain...)
	return nil
}

func (m *memStorage) Export() ([]byte, error) {
	return nil, nil
}

func newTestBlockchain(t *testing.T, store *memStorage) (*chain.Blockchain, *consensus.PoW) {
	t.Helper()

	cons := consensus.New("nodeA", "nodeA-owner", 1, 1, nil)

	bc := chain.New(chain.Config{
		NodeID:       "nodeA",
		OwnerAddress: "nodeA-owner",
		GenesisConfig: genesis.Config{
			BlockchainName: "test",
			Timestamp:      1_700_000_000_000,
			Entries:        "Genesis Block",
			Difficulty:     1,
		},
		FixedReward: 50,
		MinEntries:  1000, // high enough that entry submission never auto-triggers mining
	}, cons, store)

	if err := bc.Start(); err != nil {
		t.Fatalf("\t%s\tShould start the blockchain: %s", failed, err)
	}

	return bc, cons
}

// mineNext mines the block immediately following tip, using cons.
func mineNext(t *testing.T, cons *consensus.PoW, tip database.Block) database.Block {
	t.Helper()

	block, ok := cons.CreateBlock(tip.Index+1, database.NewEntriesData(nil), tip.Hash)
	if !ok {
		t.Fatalf("\t%s\tShould be able to mine block %d.", failed, tip.Index+1)
	}
	return block
}

func Test_ReplaceChainMutualExclusion(t *testing.T) {
	t.Log("Given the need to serialize concurrent chain replacements against each other.")

	store := &memStorage{gate: make(chan struct{})}
	bc, cons := newTestBlockchain(t, store)

	genesisBlock := bc.Tip()
	block1 := mineNext(t, cons, genesisBlock)
	candidate := []database.Block{genesisBlock, block1}

	errCh := make(chan error, 1)
	go func() {
		errCh <- bc.ReplaceChain(candidate)
	}()

	// Give the goroutine time to enter ReplaceChain and set processingPeerChain
	// before this goroutine's call races it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		if err := bc.ReplaceChain(candidate); err == chain.ErrChainReplaceInProgress {
			t.Logf("\t%s\tShould reject a concurrent ReplaceChain call while one is in flight.", success)
			close(store.gate)

			if err := <-errCh; err != nil {
				t.Fatalf("\t%s\tShould let the first ReplaceChain call complete: %s", failed, err)
			}
			t.Logf("\t%s\tShould let the first ReplaceChain call complete once unblocked.", success)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(store.gate)
	<-errCh
	t.Fatalf("\t%s\tShould have observed ErrChainReplaceInProgress from a concurrent call.", failed)
}

func Test_ReplaceChainAcceptsLongerValidChain(t *testing.T) {
	t.Log("Given the need to adopt a strictly longer, validly constructed peer chain.")

	store := &memStorage{}
	bc, cons := newTestBlockchain(t, store)

	var accepted []database.Block
	bc.Bus().Subscribe(chain.EventPeerChainAccepted, func(payload any) {
		if c, ok := payload.([]database.Block); ok {
			accepted = c
		}
	})

	genesisBlock := bc.Tip()
	block1 := mineNext(t, cons, genesisBlock)
	block2 := mineNext(t, cons, block1)
	candidate := []database.Block{genesisBlock, block1, block2}

	if err := bc.ReplaceChain(candidate); err != nil {
		t.Fatalf("\t%s\tShould accept the longer candidate chain: %s", failed, err)
	}
	t.Logf("\t%s\tShould accept the longer candidate chain.", success)

	if accepted == nil {
		t.Fatalf("\t%s\tShould have published peerChainAccepted.", failed)
	}
	t.Logf("\t%s\tShould have published peerChainAccepted.", success)

	if bc.Height() != 2 {
		t.Fatalf("\t%s\tShould have adopted the new chain's height, got %d.", failed, bc.Height())
	}
	t.Logf("\t%s\tShould reflect the new chain's height after replacement.", success)
}

func Test_ReplaceChainRejectsNonLongerChain(t *testing.T) {
	t.Log("Given the need to reject a candidate chain that is not strictly longer.")

	store := &memStorage{}
	bc, _ := newTestBlockchain(t, store)

	candidate := []database.Block{bc.Tip()}

	if err := bc.ReplaceChain(candidate); err != chain.ErrChainNotLonger {
		t.Fatalf("\t%s\tShould reject a same-length candidate with ErrChainNotLonger, got %v.", failed, err)
	}
	t.Logf("\t%s\tShould reject a candidate chain that is not strictly longer.", success)
}

func Test_ReplaceChainRejectsStructurallyInvalidChain(t *testing.T) {
	t.Log("Given the need to reject a candidate chain that fails structural validation.")

	store := &memStorage{}
	bc, cons := newTestBlockchain(t, store)

	genesisBlock := bc.Tip()
	block1 := mineNext(t, cons, genesisBlock)
	block2 := mineNext(t, cons, block1)

	block2.PreviousHash = "tampered"
	candidate := []database.Block{genesisBlock, block1, block2}

	if err := bc.ReplaceChain(candidate); err == nil {
		t.Fatalf("\t%s\tShould reject a candidate chain with a broken link.", failed)
	}
	t.Logf("\t%s\tShould reject a candidate chain with a broken link.", success)
}
