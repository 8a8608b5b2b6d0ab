// Package peer implements the WebSocket peer-to-peer mesh: handshake,
// gossip broadcast and dedup, and full-chain request/response. It is the
// sole owner of the peer table; the table is mutated only from this
// package's own read loops.
package peer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meshchain/ledger/foundation/blockchain/database"
	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// dedupWindowTTL is how long a gossip messageId is remembered for
// duplicate detection before it ages out.
const dedupWindowTTL = 30 * time.Second

// EventHandler defines a function that is called to report mesh activity.
type EventHandler func(v string, args ...any)

// ChainAPI is the narrow surface PeerService needs from Blockchain: submit
// an entry learned from a peer, validate and accept a peer's block, replace
// the local chain with a longer one, and read the tip/full chain to answer
// sync requests. PeerService never touches the chain or pool directly.
type ChainAPI interface {
	SubmitEntry(e entry.Entry) error
	ValidateBlock(block database.Block) error
	AddPeerBlock(block database.Block) error
	ReplaceChain(chain []database.Block) error
	Snapshot() []database.Block
	Height() uint64
}

// conn is one live WebSocket connection to a remote node. id is empty until
// the first handshake message is processed.
type conn struct {
	id     string
	config Config
	ws     *websocket.Conn
	wmu    sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	return c.ws.WriteJSON(v)
}

// Service is the WebSocket mesh a Node runs: it accepts inbound
// connections, dials outbound seed peers, and gossips entries and blocks.
type Service struct {
	self  Config
	chain ChainAPI
	ev    EventHandler

	upgrader websocket.Upgrader
	dedup    *dedupWindow

	mu    sync.Mutex
	peers map[string]*conn

	shut chan struct{}
	wg   sync.WaitGroup
}

// New constructs a PeerService presenting self's identity in every
// message's senderConfig and handshake.
func New(self Config, chain ChainAPI, ev EventHandler) *Service {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	return &Service{
		self:     self,
		chain:    chain,
		ev:       ev,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		dedup:    newDedupWindow(dedupWindowTTL),
		peers:    make(map[string]*conn),
		shut:     make(chan struct{}),
	}
}

// Start dials every seed peer exactly once, with no reconnection attempt.
// Dial failures are logged and otherwise ignored; a seed that never comes
// up simply never joins this node's peer table.
func (s *Service) Start(seedPeers []string) {
	for _, addr := range seedPeers {
		go func(addr string) {
			if err := s.Dial(addr); err != nil {
				s.ev("peer: Start: dial %s: ERROR: %s", addr, err)
			}
		}(addr)
	}
}

// Shutdown closes every peer connection and stops accepting new gossip.
func (s *Service) Shutdown() {
	close(s.shut)

	s.mu.Lock()
	peers := make([]*conn, 0, len(s.peers))
	for _, c := range s.peers {
		peers = append(peers, c)
	}
	s.mu.Unlock()

	for _, c := range peers {
		c.ws.Close()
	}

	s.wg.Wait()
}

// PeerCount reports the number of established peer connections.
func (s *Service) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.peers)
}

// =============================================================================
// Connection establishment

// HandleWS upgrades an inbound HTTP request to a WebSocket connection and
// runs its read loop. Mount this at the node's configured p2p endpoint.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("peer: HandleWS: upgrade: %w", err)
	}

	c := &conn{ws: ws}

	s.wg.Add(1)
	go s.readLoop(c)

	return nil
}

// Dial opens an outbound WebSocket connection to addr (a ws://host:port
// URL) and sends this node's handshake first.
func (s *Service) Dial(addr string) error {
	if _, err := url.Parse(addr); err != nil {
		return fmt.Errorf("peer: Dial: invalid seed peer url %q: %w", addr, err)
	}

	ws, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("peer: Dial: %w", err)
	}

	c := &conn{ws: ws}

	if err := c.writeJSON(s.handshakeMessage()); err != nil {
		ws.Close()
		return fmt.Errorf("peer: Dial: sending handshake: %w", err)
	}

	s.wg.Add(1)
	go s.readLoop(c)

	return nil
}

// readLoop owns one connection for its lifetime: it decodes inbound
// messages and dispatches them, and removes the connection from the peer
// table when the socket closes.
func (s *Service) readLoop(c *conn) {
	defer s.wg.Done()
	defer s.removePeer(c)
	defer c.ws.Close()

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if c.id != "" {
				s.ev("peer: readLoop: %s: connection closed: %s", c.id, err)
			}
			return
		}

		s.handleMessage(c, msg)
	}
}

func (s *Service) removePeer(c *conn) {
	if c.id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.peers[c.id]; ok && existing == c {
		delete(s.peers, c.id)
	}
}

// registerPeer records c under its handshake-declared id. It reports
// whether the peer was previously unknown, so the caller can reply with
// its own handshake on first contact.
func (s *Service) registerPeer(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, known := s.peers[c.id]
	s.peers[c.id] = c
	return !known
}

// =============================================================================
// Message dispatch

func (s *Service) handleMessage(c *conn, msg Message) {
	if msg.Type == TypeHandshake {
		c.id = msg.SenderConfig.ID
		c.config = msg.SenderConfig

		unknown := s.registerPeer(c)
		s.ev("peer: handleMessage: handshake from %s: new[%t]", c.id, unknown)

		if unknown {
			if err := c.writeJSON(s.handshakeMessage()); err != nil {
				s.ev("peer: handleMessage: replying handshake to %s: ERROR: %s", c.id, err)
			}
		}
		return
	}

	if s.dedup.SeenOrRecord(msg.MessageID) {
		s.ev("peer: handleMessage: duplicate messageId[%s], dropped", msg.MessageID)
		return
	}

	switch msg.Type {
	case TypeNewEntry:
		s.handleNewEntry(msg)

	case TypeNewBlock:
		s.handleNewBlock(c, msg)

	case TypeRequestFullChain:
		s.handleRequestFullChain(c)

	case TypeFullChain:
		s.handleFullChain(msg)

	default:
		s.ev("peer: handleMessage: unknown message type %q", msg.Type)
	}
}

func (s *Service) handleNewEntry(msg Message) {
	var e entry.Entry
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		s.ev("peer: handleNewEntry: decode: ERROR: %s", err)
		return
	}

	if err := s.chain.SubmitEntry(e); err != nil {
		s.ev("peer: handleNewEntry: entry[%s] rejected: %s", e.EntryID, err)
	}

	s.broadcast(msg)
}

// handleNewBlock handles an incoming block announcement: a block claimed
// far ahead of the local tip triggers a full-chain request; otherwise the
// block is validated and, if valid, appended. Either way the message is gossiped
// onward — even an invalid block is forwarded, since downstream peers
// validate independently and this keeps the mesh connected through
// transient forks.
func (s *Service) handleNewBlock(c *conn, msg Message) {
	var block database.Block
	if err := json.Unmarshal(msg.Data, &block); err != nil {
		s.ev("peer: handleNewBlock: decode: ERROR: %s", err)
		return
	}

	tipIndex := s.chain.Height()

	if block.Index > tipIndex+1 {
		s.ev("peer: handleNewBlock: block[%d] ahead of tip[%d], requesting full chain from %s", block.Index, tipIndex, c.id)
		if err := c.writeJSON(s.requestFullChainMessage()); err != nil {
			s.ev("peer: handleNewBlock: requesting full chain: ERROR: %s", err)
		}
	} else if err := s.chain.ValidateBlock(block); err != nil {
		s.ev("peer: handleNewBlock: block[%d] invalid, dropped locally: %s", block.Index, err)
	} else if err := s.chain.AddPeerBlock(block); err != nil {
		s.ev("peer: handleNewBlock: block[%d] not appended: %s", block.Index, err)
	}

	s.broadcast(msg)
}

func (s *Service) handleRequestFullChain(c *conn) {
	if err := c.writeJSON(s.fullChainMessage()); err != nil {
		s.ev("peer: handleRequestFullChain: sending full chain to %s: ERROR: %s", c.id, err)
	}
}

func (s *Service) handleFullChain(msg Message) {
	var chain []database.Block
	if err := json.Unmarshal(msg.Data, &chain); err != nil {
		s.ev("peer: handleFullChain: decode: ERROR: %s", err)
		return
	}

	if err := s.chain.ReplaceChain(chain); err != nil {
		s.ev("peer: handleFullChain: chain[%d] not adopted: %s", len(chain), err)
	}
}

// =============================================================================
// Origination and broadcast

// BroadcastEntry originates a newEntry gossip message for a locally
// accepted entry and floods it to every peer.
func (s *Service) BroadcastEntry(e entry.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		s.ev("peer: BroadcastEntry: marshal: ERROR: %s", err)
		return
	}

	s.broadcast(Message{
		Type:         TypeNewEntry,
		MessageID:    uuid.NewString(),
		SenderConfig: s.self,
		Data:         data,
	})
}

// BroadcastBlock originates a newBlock gossip message for a locally mined
// block and floods it to every peer.
func (s *Service) BroadcastBlock(block database.Block) {
	data, err := json.Marshal(block)
	if err != nil {
		s.ev("peer: BroadcastBlock: marshal: ERROR: %s", err)
		return
	}

	s.broadcast(Message{
		Type:         TypeNewBlock,
		MessageID:    uuid.NewString(),
		SenderConfig: s.self,
		Data:         data,
	})
}

// broadcast sends msg to every peer except the one identified by
// msg.SenderConfig.ID. That id is the message's originator and is carried
// unchanged as the message hops across the mesh.
func (s *Service) broadcast(msg Message) {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.peers))
	for id, c := range s.peers {
		if id == msg.SenderConfig.ID {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.writeJSON(msg); err != nil {
			s.ev("peer: broadcast: %s: ERROR: %s", c.id, err)
		}
	}
}

func (s *Service) handshakeMessage() Message {
	return Message{
		Type:         TypeHandshake,
		MessageID:    uuid.NewString(),
		SenderConfig: s.self,
	}
}

func (s *Service) requestFullChainMessage() Message {
	return Message{
		Type:         TypeRequestFullChain,
		MessageID:    uuid.NewString(),
		SenderConfig: s.self,
	}
}

func (s *Service) fullChainMessage() Message {
	data, err := json.Marshal(s.chain.Snapshot())
	if err != nil {
		data = []byte("[]")
	}

	return Message{
		Type:         TypeFullChain,
		MessageID:    uuid.NewString(),
		SenderConfig: s.self,
		Data:         data,
	}
}
