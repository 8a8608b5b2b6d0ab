package entry_test

import (
	"testing"
	"time"

	"github.com/meshchain/ledger/foundation/blockchain/entry"
	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestEntry_SignAndValidate(t *testing.T) {
	t.Log("Given the need to sign and validate an entry.")
	{
		pk, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to generate a private key.", success)

		e, err := entry.New(pk.PublicKey(), pk.PublicKey(), 100, "crypto", "hello")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct an entry: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct an entry.", success)

		e, err = e.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the entry: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the entry.", success)

		if err := e.Validate(time.Now()); err != nil {
			t.Fatalf("\t%s\tShould validate a freshly signed entry: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate a freshly signed entry.", success)
	}
}

func TestEntry_RejectsForgedSignature(t *testing.T) {
	t.Log("Given an entry signed by the wrong key.")
	{
		signer, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}

		claimed, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}

		e, err := entry.New(claimed.PublicKey(), signer.PublicKey(), 10, "crypto", nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct an entry: %s", failed, err)
		}

		e, err = e.Sign(signer)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the entry: %s", failed, err)
		}

		if err := e.Validate(time.Now()); err == nil {
			t.Fatalf("\t%s\tShould reject an entry signed by a key other than From.", failed)
		}
		t.Logf("\t%s\tShould reject an entry signed by a key other than From.", success)
	}
}

func TestEntry_RejectsTamperedHash(t *testing.T) {
	t.Log("Given an entry whose hash no longer matches its contents.")
	{
		pk, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}

		e, err := entry.New(pk.PublicKey(), pk.PublicKey(), 10, "crypto", nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct an entry: %s", failed, err)
		}

		e, err = e.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the entry: %s", failed, err)
		}

		e.Amount = 999

		if err := e.Validate(time.Now()); err == nil {
			t.Fatalf("\t%s\tShould reject an entry with a stale hash.", failed)
		}
		t.Logf("\t%s\tShould reject an entry with a stale hash.", success)
	}
}

func TestEntry_RejectsStaleTimestamp(t *testing.T) {
	t.Log("Given an entry initiated well outside the drift window.")
	{
		e, err := entry.New(signature.IdentityICO, "someone", 10, "crypto", nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a sentinel entry: %s", failed, err)
		}
		e.InitiationTimestamp = time.Now().Add(-2 * time.Minute).UnixMilli()

		hash, err := signature.Hash(struct {
			From                string `json:"from"`
			To                  string `json:"to"`
			Amount              uint64 `json:"amount"`
			Type                string `json:"type"`
			InitiationTimestamp int64  `json:"initiationTimestamp"`
			Data                any    `json:"data"`
		}{e.From, e.To, e.Amount, e.Type, e.InitiationTimestamp, e.Data})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to rehash: %s", failed, err)
		}
		e.Hash = hash

		if err := e.Validate(time.Now()); err == nil {
			t.Fatalf("\t%s\tShould reject a stale-timestamped entry.", failed)
		}
		t.Logf("\t%s\tShould reject a stale-timestamped entry.", success)
	}
}

func TestEntry_SentinelNeverNeedsSignature(t *testing.T) {
	t.Log("Given a sentinel-originated entry with no signature.")
	{
		e, err := entry.New(signature.IdentityIncentive, "someone", 50, "crypto", nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a sentinel entry: %s", failed, err)
		}

		if err := e.Validate(time.Now()); err != nil {
			t.Fatalf("\t%s\tShould validate an unsigned sentinel entry: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate an unsigned sentinel entry.", success)
	}
}
