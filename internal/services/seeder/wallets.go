package seeder

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// MaxGeneratedWallets bounds a single GenerateWallets call.
const MaxGeneratedWallets = 10000

// GenerateWallets returns n fresh checksummed EVM addresses. The private keys
// are discarded: the sandbox only needs unique identifiers.
func GenerateWallets(n int) ([]string, error) {
	if n <= 0 || n > MaxGeneratedWallets {
		return nil, errors.Wrapf(domain.ErrInvalidAmount, "wallet count must be in [1, %d], got %d", MaxGeneratedWallets, n)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "generate key")
		}
		out = append(out, crypto.PubkeyToAddress(key.PublicKey).Hex())
	}
	return out, nil
}
