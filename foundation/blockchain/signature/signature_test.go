package signature_test

import (
	"testing"

	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

func Test_Signing(t *testing.T) {
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("should be able to generate a private key: %s", err)
	}

	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	sig, err := pk.Sign(value)
	if err != nil {
		t.Fatalf("should be able to sign data: %s", err)
	}

	if err := signature.Verify(value, sig, pk.PublicKey()); err != nil {
		t.Fatalf("should be able to verify the signature: %s", err)
	}
}

func Test_HashIsStable(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	h1, err := signature.Hash(value)
	if err != nil {
		t.Fatalf("should be able to hash: %s", err)
	}

	h2, err := signature.Hash(value)
	if err != nil {
		t.Fatalf("should be able to hash: %s", err)
	}

	if h1 != h2 {
		t.Fatalf("should get back the same hash twice: got %s and %s", h1, h2)
	}
}

func Test_VerifyRejectsWrongKey(t *testing.T) {
	pk1, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("should be able to generate a private key: %s", err)
	}

	pk2, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("should be able to generate a private key: %s", err)
	}

	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	sig, err := pk1.Sign(value)
	if err != nil {
		t.Fatalf("should be able to sign data: %s", err)
	}

	if err := signature.Verify(value, sig, pk2.PublicKey()); err == nil {
		t.Fatalf("should not verify against the wrong public key")
	}
}

func Test_IsPublicKey(t *testing.T) {
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("should be able to generate a private key: %s", err)
	}

	if !signature.IsPublicKey(pk.PublicKey()) {
		t.Fatalf("should recognize a generated public key as valid")
	}

	if !signature.IsPublicKey(signature.IdentityICO) {
		t.Fatalf("should recognize the ICO sentinel as valid")
	}

	if !signature.IsPublicKey(signature.IdentityIncentive) {
		t.Fatalf("should recognize the INCENTIVE sentinel as valid")
	}

	if signature.IsPublicKey("not-a-key") {
		t.Fatalf("should reject a malformed key")
	}
}
