// Package entry implements the signed, user-submitted message that is the
// unit of work queued for inclusion in a block.
package entry

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

// driftTolerance is how far from the receiving node's clock an entry's
// initiation timestamp may drift, in either direction, and still be
// accepted.
const driftTolerance = 60 * time.Second

// PendingBlockIndex is the sentinel block index reported for an entry that
// has not yet been included in a block.
const PendingBlockIndex = "pending"

// =============================================================================

// Entry is a signed message intended for inclusion in a block.
type Entry struct {
	EntryID             string `json:"entryId"`
	From                string `json:"from"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	Type                string `json:"type"`
	InitiationTimestamp int64  `json:"initiationTimestamp"`
	Data                any    `json:"data"`
	Hash                string `json:"hash"`
	Signature           string `json:"signature"`
}

// unsignedFields is the stable, field-ordered view hashed to produce Hash.
type unsignedFields struct {
	From                string `json:"from"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	Type                string `json:"type"`
	InitiationTimestamp int64  `json:"initiationTimestamp"`
	Data                any    `json:"data"`
}

// signedFields is the stable, field-ordered view that the signature covers:
// the six unsigned fields plus the hash, in the order fixed by the wire
// protocol so every implementation signs and verifies the same bytes.
type signedFields struct {
	From                string `json:"from"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	Type                string `json:"type"`
	InitiationTimestamp int64  `json:"initiationTimestamp"`
	Data                any    `json:"data"`
	Hash                string `json:"hash"`
}

func (e Entry) unsigned() unsignedFields {
	return unsignedFields{
		From:                e.From,
		To:                  e.To,
		Amount:              e.Amount,
		Type:                e.Type,
		InitiationTimestamp: e.InitiationTimestamp,
		Data:                e.Data,
	}
}

func (e Entry) signed() signedFields {
	return signedFields{
		From:                e.From,
		To:                  e.To,
		Amount:              e.Amount,
		Type:                e.Type,
		InitiationTimestamp: e.InitiationTimestamp,
		Data:                e.Data,
		Hash:                e.Hash,
	}
}

// New constructs an unsigned entry with a freshly computed hash and a newly
// assigned entry id. The caller is responsible for signing it unless From is
// a sentinel identity.
func New(from, to string, amount uint64, typ string, data any) (Entry, error) {
	e := Entry{
		EntryID:             uuid.NewString(),
		From:                from,
		To:                  to,
		Amount:              amount,
		Type:                typ,
		InitiationTimestamp: time.Now().UTC().UnixMilli(),
		Data:                data,
	}

	hash, err := signature.Hash(e.unsigned())
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash

	return e, nil
}

// Sign signs the entry with the given private key. Entries from a sentinel
// identity (ICO, INCENTIVE) are never signed.
func (e Entry) Sign(pk signature.PrivateKey) (Entry, error) {
	sig, err := pk.Sign(e.signed())
	if err != nil {
		return Entry{}, err
	}
	e.Signature = sig

	return e, nil
}

// IsSentinel reports whether From is a system-originated identity that is
// exempt from signature verification.
func (e Entry) IsSentinel() bool {
	return e.From == signature.IdentityICO || e.From == signature.IdentityIncentive
}

// RecomputeHash recomputes Hash from the unsigned fields and reports whether
// it matches the stored value.
func (e Entry) RecomputeHash() (bool, error) {
	hash, err := signature.Hash(e.unsigned())
	if err != nil {
		return false, err
	}

	return hash == e.Hash, nil
}

// Validate checks the entry's hash, signature (unless the sender is a
// sentinel identity), and timestamp freshness against now. It does not
// check for duplication; that is the EntryPool's responsibility.
func (e Entry) Validate(now time.Time) error {
	ok, err := e.RecomputeHash()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("entry hash does not match its contents")
	}

	if !e.IsSentinel() {
		if e.Signature == "" {
			return errors.New("entry is missing a signature")
		}
		if err := signature.Verify(e.signed(), e.Signature, e.From); err != nil {
			return errors.New("entry signature does not verify: " + err.Error())
		}
	}

	drift := now.Sub(time.UnixMilli(e.InitiationTimestamp))
	if drift < 0 {
		drift = -drift
	}
	if drift > driftTolerance {
		return errors.New("entry initiation timestamp is outside the allowed drift window")
	}

	return nil
}
