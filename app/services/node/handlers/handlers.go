// Package handlers wires the thin HTTP query surface around a Node: health,
// read-only chain/pool/balance/validity inspection, entry submission, a
// debug event-feed WebSocket, and the p2p mesh WebSocket. Nothing
// consensus-relevant lives here — every handler is a direct pass-through to
// Node's already-validated public operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/events"
	"github.com/meshchain/ledger/foundation/node"
)

// MuxConfig carries the dependencies the query surface hands off to.
type MuxConfig struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	Evts *events.Feed
}

// Mux constructs the httptreemux router serving the node's public
// endpoints: health, chain/pool/balance reads, entry submission, the
// debug event feed, and the p2p WebSocket upgrade.
func Mux(cfg MuxConfig) *httptreemux.ContextMux {
	mux := httptreemux.NewContextMux()

	h := handlers{cfg: cfg, upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}}

	mux.Handle(http.MethodGet, "/v1/health", h.health)
	mux.Handle(http.MethodGet, "/v1/chain", h.chain)
	mux.Handle(http.MethodGet, "/v1/chain/:index", h.blockByIndex)
	mux.Handle(http.MethodGet, "/v1/pool", h.pool)
	mux.Handle(http.MethodGet, "/v1/balances/:key", h.balance)
	mux.Handle(http.MethodGet, "/v1/entries/:id/validate", h.validateEntry)
	mux.Handle(http.MethodPost, "/v1/entries", h.submitEntry)
	mux.Handle(http.MethodGet, "/v1/events", h.events)
	mux.Handle(http.MethodGet, "/v1/ws", h.ws)

	return mux
}

type handlers struct {
	cfg      MuxConfig
	upgrader websocket.Upgrader
}

func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) chain(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.cfg.Node.Chain.Snapshot())
}

func (h handlers) blockByIndex(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())

	index, err := strconv.ParseUint(params["index"], 10, 64)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "index must be a non-negative integer"})
		return
	}

	block, ok := h.cfg.Node.Chain.GetByIndex(index)
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "block not found"})
		return
	}

	respond(w, http.StatusOK, block)
}

func (h handlers) pool(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.cfg.Node.Chain.PendingEntries())
}

func (h handlers) balance(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())
	key := params["key"]

	includePending := r.URL.Query().Get("pending") == "true"
	respond(w, http.StatusOK, h.cfg.Node.Ledger.Balance(key, includePending))
}

func (h handlers) validateEntry(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())
	id := params["id"]

	valid, ok := h.cfg.Node.Chain.Validate(id)
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}

	respond(w, http.StatusOK, map[string]any{"entryId": id, "valid": valid})
}

func (h handlers) submitEntry(w http.ResponseWriter, r *http.Request) {
	var e entry.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "malformed entry payload"})
		return
	}

	if err := h.cfg.Node.Chain.SubmitEntry(e); err != nil {
		h.cfg.Log.Infow("handlers: submitEntry: rejected", "entryId", e.EntryID, "ERROR", err)
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	respond(w, http.StatusAccepted, map[string]string{"status": "accepted", "entryId": e.EntryID})
}

func (h handlers) ws(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Node.HandleWS(w, r); err != nil {
		h.cfg.Log.Infow("handlers: ws: upgrade failed", "ERROR", err)
	}
}

// events upgrades to a WebSocket and streams this node's live activity feed
// (mining progress, consensus decisions) to the client until it disconnects.
// It is a debug aid for operators, unrelated to the p2p mesh socket.
func (h handlers) events(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Log.Infow("handlers: events: upgrade failed", "ERROR", err)
		return
	}
	defer c.Close()

	id := uuid.NewString()
	ch := h.cfg.Evts.Subscribe(id)
	defer h.cfg.Evts.Unsubscribe(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case activity, open := <-ch:
			if !open {
				return
			}
			if err := c.WriteJSON(activity); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
