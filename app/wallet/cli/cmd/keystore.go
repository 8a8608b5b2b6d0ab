package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/meshchain/ledger/foundation/blockchain/signature"
)

// loadPrivateKey reads a hex-encoded private key from path.
func loadPrivateKey(path string) (signature.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return signature.PrivateKey{}, err
	}

	return signature.PrivateKeyFromHex(strings.TrimSpace(string(raw)))
}

// savePrivateKey writes pk's hex encoding to path, creating parent
// directories as needed.
func savePrivateKey(path string, pk signature.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(pk.String()), 0o600)
}
