package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]*$`)

func TestRandomCode(t *testing.T) {
	code, err := RandomCode(TwoFACodeLength)
	require.NoError(t, err)
	assert.Len(t, code, TwoFACodeLength)
	assert.Regexp(t, codePattern, code)
}

type constIntn int

func (c constIntn) Intn(int) int { return int(c) }

func TestRobotTilesCentreAlwaysSet(t *testing.T) {
	tiles := RobotTiles(constIntn(1))
	for i, set := range tiles {
		if i == RobotTileCount/2 {
			assert.True(t, set)
		} else {
			assert.False(t, set, "tile %d", i)
		}
	}

	tiles = RobotTiles(constIntn(0))
	for i, set := range tiles {
		assert.True(t, set, "tile %d", i)
	}
}

type rapidIntn struct{ t *rapid.T }

func (r rapidIntn) Intn(n int) int { return rapid.IntRange(0, n-1).Draw(r.t, "intn") }

func TestPropertyRobotTilesCentreSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tiles := RobotTiles(rapidIntn{t})
		if !tiles[4] {
			t.Fatal("centre tile unset")
		}
	})
}

func TestPropertyRandomCodeAlphabet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		code, err := RandomCode(n)
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != n || !codePattern.MatchString(code) {
			t.Fatalf("bad code %q for n=%d", code, n)
		}
	})
}
