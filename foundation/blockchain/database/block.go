// Package database implements the block and chain data model: hashing,
// linking, and the structural validation that does not depend on any
// pluggable consensus rule.
package database

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
)

// GenesisNote is the literal block data carried by the genesis block.
const GenesisNote = "Genesis Block"

// GenesisCreator is the blockCreator/ownerAddress stamped on the genesis
// block, matching across every node that shares the same genesis
// configuration.
const GenesisCreator = "Genesis Block"

// =============================================================================

// BlockData is the sum type carried in a block: either the genesis note or
// the list of entries the block commits. Hashing must reproduce the exact
// JSON a non-structural implementation would have produced for each
// variant, since the block hash is wire-compatible across implementations.
type BlockData struct {
	Genesis *string       `json:"-"`
	Entries []entry.Entry `json:"-"`
}

// NewGenesisData constructs the BlockData carried by a genesis block.
func NewGenesisData(note string) BlockData {
	return BlockData{Genesis: &note}
}

// NewEntriesData constructs the BlockData carried by a non-genesis block.
func NewEntriesData(entries []entry.Entry) BlockData {
	if entries == nil {
		entries = []entry.Entry{}
	}
	return BlockData{Entries: entries}
}

// IsGenesis reports whether this is the genesis block's literal-string data.
func (d BlockData) IsGenesis() bool {
	return d.Genesis != nil
}

// MarshalJSON produces the exact JSON the hash preimage is defined over:
// the bare string for genesis data, the bare array for entries.
func (d BlockData) MarshalJSON() ([]byte, error) {
	if d.Genesis != nil {
		return json.Marshal(*d.Genesis)
	}
	if d.Entries == nil {
		return json.Marshal([]entry.Entry{})
	}
	return json.Marshal(d.Entries)
}

// UnmarshalJSON accepts either a JSON string (genesis) or a JSON array
// (entries) and reconstructs the matching variant.
func (d *BlockData) UnmarshalJSON(data []byte) error {
	var note string
	if err := json.Unmarshal(data, &note); err == nil {
		d.Genesis = &note
		d.Entries = nil
		return nil
	}

	var entries []entry.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("block data is neither a genesis string nor an entry array: %w", err)
	}
	d.Entries = entries
	d.Genesis = nil
	return nil
}

// =============================================================================

// Block is an immutable, linked record in the chain.
type Block struct {
	Index         uint64    `json:"index"`
	Timestamp     int64     `json:"timestamp"`
	PreviousHash  string    `json:"previousHash"`
	BlockCreator  string    `json:"blockCreator"`
	OwnerAddress  string    `json:"ownerAddress"`
	Data          BlockData `json:"data"`
	Nonce         uint64    `json:"nonce"`
	Difficulty    uint      `json:"difficulty"`
	Hash          string    `json:"hash"`
}

// ComputeHash returns the hex-encoded SHA-256 digest of the field
// concatenation defined by the wire protocol: index, previousHash,
// timestamp, blockCreator, ownerAddress, JSON(data), nonce — each in its
// canonical string form, concatenated with no separator.
func (b Block) ComputeHash() (string, error) {
	dataJSON, err := json.Marshal(b.Data)
	if err != nil {
		return "", err
	}

	var buf []byte
	buf = append(buf, strconv.FormatUint(b.Index, 10)...)
	buf = append(buf, b.PreviousHash...)
	buf = append(buf, strconv.FormatInt(b.Timestamp, 10)...)
	buf = append(buf, b.BlockCreator...)
	buf = append(buf, b.OwnerAddress...)
	buf = append(buf, dataJSON...)
	buf = append(buf, strconv.FormatUint(b.Nonce, 10)...)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// RecomputeHash recomputes the block's hash and reports whether it matches
// the stored value.
func (b Block) RecomputeHash() (bool, error) {
	hash, err := b.ComputeHash()
	if err != nil {
		return false, err
	}
	return hash == b.Hash, nil
}

// Entries returns the entries carried by the block, or nil for the
// genesis block.
func (b Block) Entries() []entry.Entry {
	return b.Data.Entries
}

// =============================================================================

// ErrChainForked describes a received chain or block that reveals a fork
// deeper than this node's view can reconcile by simple length comparison.
// No validation in this package returns it.
var ErrChainForked = errors.New("blockchain forked, start resync")

// timestampTolerance is the loose monotonicity window: a block's timestamp
// may trail its predecessor's by up to this much and still be accepted, to
// absorb ordinary clock drift across the mesh.
const timestampTolerance = 60 * time.Second

// ValidateLinkage checks that block is structurally the immediate successor
// of previous: index continuity, hash linkage, and loose timestamp
// monotonicity. It does not check consensus-specific rules such as a
// proof-of-work difficulty prefix — that is Consensus.ValidateBlockConsensus.
func ValidateLinkage(previous, block Block) error {
	if block.Index != previous.Index+1 {
		return fmt.Errorf("block is not the next index: got %d, expected %d", block.Index, previous.Index+1)
	}

	if block.PreviousHash != previous.Hash {
		return fmt.Errorf("previous hash does not match: got %s, expected %s", block.PreviousHash, previous.Hash)
	}

	ok, err := block.RecomputeHash()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("block hash %s does not match its contents", block.Hash)
	}

	floor := time.UnixMilli(previous.Timestamp).Add(-timestampTolerance)
	if !time.UnixMilli(block.Timestamp).After(floor) {
		return fmt.Errorf("block timestamp is %s or more behind its predecessor", timestampTolerance)
	}

	return nil
}

// =============================================================================

// ValidationReport describes the outcome of independently re-validating a
// whole chain end to end.
type ValidationReport struct {
	IsValid                bool              `json:"isValid"`
	BlockCount             int               `json:"blockCount"`
	AreHashesValid         bool              `json:"areHashesValid"`
	ArePreviousHashesValid bool              `json:"arePreviousHashesValid"`
	AreIndexesValid        bool              `json:"areIndexesValid"`
	AreTimestampsValid     bool              `json:"areTimestampsValid"`
	Errors                 []ValidationError `json:"errors"`
}

// ValidationError describes one specific structural defect found while
// validating a chain.
type ValidationError struct {
	ErrorType   string `json:"errorType"`
	BlockNumber uint64 `json:"blockNumber"`
	Message     string `json:"message"`
}

// ValidateChain independently re-checks every block in chain against its
// predecessor, accumulating a structured report rather than stopping at the
// first defect.
func ValidateChain(chain []Block) ValidationReport {
	report := ValidationReport{
		BlockCount:             len(chain),
		AreHashesValid:         true,
		ArePreviousHashesValid: true,
		AreIndexesValid:        true,
		AreTimestampsValid:     true,
	}

	for i, block := range chain {
		ok, err := block.RecomputeHash()
		if err != nil || !ok {
			report.AreHashesValid = false
			report.Errors = append(report.Errors, ValidationError{
				ErrorType:   "hash",
				BlockNumber: block.Index,
				Message:     fmt.Sprintf("block %d hash does not match its contents", block.Index),
			})
		}

		if i == 0 {
			continue
		}

		previous := chain[i-1]

		if block.Index != uint64(i) {
			report.AreIndexesValid = false
			report.Errors = append(report.Errors, ValidationError{
				ErrorType:   "index",
				BlockNumber: block.Index,
				Message:     fmt.Sprintf("block at position %d has index %d", i, block.Index),
			})
		}

		if block.PreviousHash != previous.Hash {
			report.ArePreviousHashesValid = false
			report.Errors = append(report.Errors, ValidationError{
				ErrorType:   "previousHash",
				BlockNumber: block.Index,
				Message:     fmt.Sprintf("block %d previousHash does not match block %d hash", block.Index, previous.Index),
			})
		}

		floor := time.UnixMilli(previous.Timestamp).Add(-timestampTolerance)
		if !time.UnixMilli(block.Timestamp).After(floor) {
			report.AreTimestampsValid = false
			report.Errors = append(report.Errors, ValidationError{
				ErrorType:   "timestamp",
				BlockNumber: block.Index,
				Message:     fmt.Sprintf("block %d timestamp regresses %s or more from block %d", block.Index, timestampTolerance, previous.Index),
			})
		}
	}

	report.IsValid = report.AreHashesValid && report.ArePreviousHashesValid && report.AreIndexesValid && report.AreTimestampsValid

	return report
}

// ZeroHash is the previousHash value carried by the genesis block.
const ZeroHash = "0"
