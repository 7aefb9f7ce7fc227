package card

import (
	"crypto/rand"
	"math/big"
)

// Source is the randomness provider for shuffles, draws and seat selection.
type Source interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics otherwise, or if crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("card: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("card: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}
