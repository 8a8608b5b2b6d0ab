// Package genesis holds the configuration determinants of the genesis
// block. Every node that shares the same Config MUST construct a
// byte-identical genesis block, which is why these values travel as plain
// configuration rather than being read from a file checked into one node's
// disk: a file would invite the nodes on the mesh to drift.
package genesis

import "time"

// Config carries the values that determine the genesis block. The zero
// value is invalid; callers must supply all fields from the node's
// configuration. Identity fields like ownerAddress deliberately have no
// place here: every node configures its own, and the genesis block's
// creator/owner is always the fixed database.GenesisCreator literal so
// every node on the mesh produces a byte-identical block.
type Config struct {
	// BlockchainName identifies the network this genesis belongs to. It has
	// no effect on hashing; it exists so operators can sanity-check two
	// nodes agree on which network they are joining.
	BlockchainName string

	// Timestamp is the genesis block's timestamp in milliseconds since
	// epoch, fixed by configuration so every node reproduces it exactly.
	Timestamp int64

	// Entries is the literal note carried as the genesis block's data. The
	// wire-compatible default is the literal string "Genesis Block"
	// (database.GenesisNote); a deployment may substitute a different note
	// as long as every node on the mesh agrees on it.
	Entries string

	// Difficulty is the leading-hex-zero count the genesis block's mined
	// hash must carry.
	Difficulty uint
}

// Date returns the genesis timestamp as a time.Time, for logging.
func (c Config) Date() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}
