package peer_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// stubChain is a minimal ChainAPI double recording what PeerService asked
// of it.
type stubChain struct {
	height        uint64
	submitted     []entry.Entry
	appended      []database.Block
	replaced      [][]database.Block
	validateError error
}

func (s *stubChain) SubmitEntry(e entry.Entry) error {
	s.submitted = append(s.submitted, e)
	return nil
}

func (s *stubChain) ValidateBlock(block database.Block) error {
	return s.validateError
}

func (s *stubChain) AddPeerBlock(block database.Block) error {
	s.appended = append(s.appended, block)
	return nil
}

func (s *stubChain) ReplaceChain(chain []database.Block) error {
	s.replaced = append(s.replaced, chain)
	return nil
}

func (s *stubChain) Snapshot() []database.Block {
	return nil
}

func (s *stubChain) Height() uint64 {
	return s.height
}

func newTestServer(t *testing.T, id string, chain peer.ChainAPI) (*peer.Service, string) {
	t.Helper()

	svc := peer.New(peer.Config{ID: id}, chain, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.HandleWS(w, r); err != nil {
			t.Errorf("HandleWS: %s", err)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return svc, wsURL
}

func Test_HandshakeEstablishesPeer(t *testing.T) {
	t.Log("Given the need to establish a peer connection via handshake.")

	chainA := &stubChain{}
	chainB := &stubChain{}

	_, urlA := newTestServer(t, "nodeA", chainA)
	nodeB := peer.New(peer.Config{ID: "nodeB"}, chainB, nil)

	if err := nodeB.Dial(urlA); err != nil {
		t.Fatalf("\t%s\tShould be able to dial nodeA: %s", failed, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if nodeB.PeerCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if nodeB.PeerCount() != 1 {
		t.Fatalf("\t%s\tShould have exactly one peer after handshake, got %d.", failed, nodeB.PeerCount())
	}
	t.Logf("\t%s\tShould have exactly one peer after handshake.", success)
}

func Test_BroadcastEntryReachesPeer(t *testing.T) {
	t.Log("Given the need to gossip a locally submitted entry to peers.")

	chainA := &stubChain{}
	chainB := &stubChain{}

	nodeA, urlA := newTestServer(t, "nodeA", chainA)
	nodeB := peer.New(peer.Config{ID: "nodeB"}, chainB, nil)

	if err := nodeB.Dial(urlA); err != nil {
		t.Fatalf("\t%s\tShould be able to dial nodeA: %s", failed, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && nodeA.PeerCount() != 1 {
		time.Sleep(10 * time.Millisecond)
	}

	e := entry.Entry{EntryID: "e1", From: "ICO", To: "K1", Amount: 5, Hash: "deadbeef"}
	nodeA.BroadcastEntry(e)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(chainB.submitted) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	if len(chainB.submitted) != 1 {
		t.Fatalf("\t%s\tShould have received the gossiped entry, got %d.", failed, len(chainB.submitted))
	}
	if chainB.submitted[0].EntryID != "e1" {
		t.Fatalf("\t%s\tShould have received the same entry id.", failed)
	}
	t.Logf("\t%s\tShould have received the gossiped entry.", success)
}
