package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TwoFACodeLength is the number of characters in an emailed verification code.
const TwoFACodeLength = 5

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomCode returns n characters drawn uniformly from [a-zA-Z0-9] using crypto/rand.
func RandomCode(n int) (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		out[i] = codeAlphabet[v.Int64()]
	}
	return string(out), nil
}

// Intn is the randomness the robot check needs.
type Intn interface {
	Intn(n int) int
}

// RobotTileCount is the size of the not-a-robot grid.
const RobotTileCount = 9

// RobotTiles returns a 3x3 grid where each tile is set with probability 1/3
// and the centre tile is always set.
func RobotTiles(src Intn) [RobotTileCount]bool {
	var tiles [RobotTileCount]bool
	for i := range tiles {
		tiles[i] = src.Intn(3) == 0
	}
	tiles[RobotTileCount/2] = true
	return tiles
}
