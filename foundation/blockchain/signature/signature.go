// Package signature provides helper functions for handling the signing and
// verifying needs of entries in the blockchain.
package signature

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Sentinel identities that never carry a signature.
const (
	IdentityICO       = "ICO"
	IdentityIncentive = "INCENTIVE"
)

// =============================================================================

// Hash returns the lowercase hex-encoded SHA-256 digest of the JSON
// serialization of value.
func Hash(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// =============================================================================

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random private key.
func GenerateKey() (PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKeyFromRand(rand.Reader)
	if err != nil {
		return PrivateKey{}, err
	}

	return PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a hex-encoded 32-byte private key.
func PrivateKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, err
	}
	if len(b) != 32 {
		return PrivateKey{}, errors.New("private key must be 32 bytes")
	}

	return PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// String returns the hex-encoded private key bytes.
func (pk PrivateKey) String() string {
	return hex.EncodeToString(pk.key.Serialize())
}

// PublicKey returns the compressed hex-encoded public key identity that
// corresponds to this private key.
func (pk PrivateKey) PublicKey() string {
	return hex.EncodeToString(pk.key.PubKey().SerializeCompressed())
}

// Sign produces a DER-encoded, hex-encoded signature over the hash of value.
func (pk PrivateKey) Sign(value any) (string, error) {
	hash, err := Hash(value)
	if err != nil {
		return "", err
	}

	digest, err := hex.DecodeString(hash)
	if err != nil {
		return "", err
	}

	sig := ecdsa.Sign(pk.key, digest)
	return hex.EncodeToString(sig.Serialize()), nil
}

// =============================================================================

// IsPublicKey validates that s is a well-formed compressed secp256k1 public
// key in hex, or one of the system sentinel identities.
func IsPublicKey(s string) bool {
	if s == IdentityICO || s == IdentityIncentive {
		return true
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}

	_, err = secp256k1.ParsePubKey(b)
	return err == nil
}

// Verify checks that sigHex is a valid DER-encoded signature over the hash
// of value, produced by the holder of the compressed public key pubKeyHex.
func Verify(value any, sigHex, pubKeyHex string) error {
	hash, err := Hash(value)
	if err != nil {
		return err
	}

	digest, err := hex.DecodeString(hash)
	if err != nil {
		return err
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return errors.New("malformed signature encoding")
	}

	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return errors.New("malformed DER signature")
	}

	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return errors.New("malformed public key encoding")
	}

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return errors.New("malformed public key")
	}

	if !sig.Verify(digest, pubKey) {
		return errors.New("signature does not match")
	}

	return nil
}
