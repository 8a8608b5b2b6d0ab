package chain

import (
	"sync"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// miningWorker runs mining on a single dedicated goroutine, observing
// cooperative cancellation, so the request that triggers it (EntryPool
// crossing its threshold) never blocks on the brute-force search.
type miningWorker struct {
	bc     *Blockchain
	signal chan []entry.Entry
	shut   chan struct{}
	wg     sync.WaitGroup
}

func newMiningWorker(bc *Blockchain) *miningWorker {
	w := &miningWorker{
		bc:     bc,
		signal: make(chan []entry.Entry, 1),
		shut:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

func (w *miningWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case entries := <-w.signal:
			w.bc.runBlockCreation(entries)

		case <-w.shut:
			return
		}
	}
}

// signalStartMining queues entries for the worker. Blockchain.AddBlock has
// already claimed blockCreationInProgress before calling this, so under
// normal operation the channel is never full; the default branch is a
// safety net, not load-bearing logic.
func (w *miningWorker) signalStartMining(entries []entry.Entry) {
	select {
	case w.signal <- entries:
	default:
		w.bc.ev("chain: signalStartMining: worker already has a pending request, dropping")
	}
}

func (w *miningWorker) shutdown() {
	close(w.shut)
	w.wg.Wait()
}
