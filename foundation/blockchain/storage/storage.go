// Package storage implements the append-only, file-backed persistence of
// the chain. Blockchain is the sole caller of Storage; it never shares the
// file handle with any other component.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/meshchain/ledger/foundation/blockchain/database"
)

// separator terminates every block's canonical JSON in the persisted
// stream: a comma then a newline, chosen so the file reads as a JSON array
// with its brackets stripped.
const separator = ",\n"

// ErrEmptyChain is returned by LoadChain when the backing store exists but
// contains no blocks. Blockchain treats this, like any LoadChain failure,
// as the signal to construct a fresh genesis block.
var ErrEmptyChain = errors.New("storage: chain is empty")

// Storage is the interface Blockchain depends on to persist the chain.
type Storage interface {
	// AppendBlock atomically appends one block to the backing store.
	AppendBlock(block database.Block) error

	// LoadChain reads every block in the backing store, in order. It
	// returns an error — including ErrEmptyChain — if the store is absent
	// or contains nothing; callers use failure as the genesis-creation
	// signal.
	LoadChain() ([]database.Block, error)

	// RewriteChain atomically replaces the entire backing store's
	// contents with chain, used when a longer peer chain is accepted.
	RewriteChain(chain []database.Block) error

	// Export produces a pretty-printed JSON dump of the chain for
	// inspection.
	Export() ([]byte, error)
}

// =============================================================================

// File is the provided file-backed Storage variant: one flat file holding
// every block's JSON, each terminated by separator.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile constructs a File-backed store rooted at path. The file is
// created lazily on first write if it does not already exist.
func NewFile(path string) *File {
	return &File{path: path}
}

// AppendBlock marshals block to its canonical JSON and appends it,
// terminated by separator, to the backing file.
func (f *File) AppendBlock(block database.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("storage: marshal block %d: %w", block.Index, err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("storage: open %s for append: %w", f.path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, []byte(separator)...)); err != nil {
		return fmt.Errorf("storage: append block %d: %w", block.Index, err)
	}

	return nil
}

// LoadChain reads the whole backing file, splits it on separator, drops the
// empty trailing segment left by the final separator, and parses each
// remaining segment as a block.
func (f *File) LoadChain() ([]database.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loadChain()
}

func (f *File) loadChain() ([]database.Block, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", f.path, err)
	}

	segments := strings.Split(string(raw), separator)

	chain := make([]database.Block, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}

		var block database.Block
		if err := json.Unmarshal([]byte(segment), &block); err != nil {
			return nil, fmt.Errorf("storage: parse block segment: %w", err)
		}
		chain = append(chain, block)
	}

	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	return chain, nil
}

// RewriteChain overwrites the backing file with the concatenation of
// chain's blocks, each terminated by separator, atomically via a
// rename-into-place so a crash mid-write cannot leave a truncated file.
func (f *File) RewriteChain(chain []database.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf bytes.Buffer
	for _, block := range chain {
		data, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("storage: marshal block %d: %w", block.Index, err)
		}
		buf.Write(data)
		buf.WriteString(separator)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("storage: write temp file: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("storage: rename temp file into place: %w", err)
	}

	return nil
}

// Export returns a pretty-printed JSON array of the current chain.
func (f *File) Export() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chain, err := f.loadChain()
	if err != nil {
		if errors.Is(err, ErrEmptyChain) {
			return json.MarshalIndent([]database.Block{}, "", "  ")
		}
		return nil, err
	}

	return json.MarshalIndent(chain, "", "  ")
}
