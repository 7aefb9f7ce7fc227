package card_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/uno/internal/game/card"
)

type pcgSource struct{ r *rand.Rand }

func (s pcgSource) Intn(n int) int { return s.r.IntN(n) }

func TestDeckComposition(t *testing.T) {
	deck := card.NewDeck()
	require.Len(t, deck, card.DeckSize)

	counts := map[card.Card]int{}
	for _, c := range deck {
		require.True(t, c.Playable(), "deck holds unplayable face %s", c)
		counts[c]++
	}
	assert.Len(t, counts, 54)
	assert.Equal(t, 4, counts[card.Wild])
	assert.Equal(t, 4, counts[card.WildDraw])
	for _, col := range card.Colors {
		assert.Equal(t, 1, counts[card.NumberCard(col, 0)])
		for n := 1; n <= 9; n++ {
			assert.Equal(t, 2, counts[card.NumberCard(col, n)])
		}
		for _, k := range []card.Kind{card.KindDraw, card.KindReverse, card.KindSkip} {
			assert.Equal(t, 2, counts[card.ActionCard(col, k)])
		}
	}
}

func TestWireNames(t *testing.T) {
	cases := map[string]card.Card{
		"None":          card.None,
		"Cover":         card.Cover,
		"Wild":          card.Wild,
		"Wild_Draw":     card.WildDraw,
		"Yellow_0":      card.NumberCard(card.Yellow, 0),
		"Red_9":         card.NumberCard(card.Red, 9),
		"Blue_Skip":     card.ActionCard(card.Blue, card.KindSkip),
		"Green_Reverse": card.ActionCard(card.Green, card.KindReverse),
		"Yellow_Draw":   card.ActionCard(card.Yellow, card.KindDraw),
	}
	for name, want := range cases {
		got, err := card.Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
		assert.Equal(t, name, want.String())
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "Purple_1", "Red_10", "Red_", "Red", "wild", "Red_Wild"} {
		_, err := card.Parse(s)
		assert.Error(t, err, s)
	}
}

func TestParseColor(t *testing.T) {
	for _, c := range card.Colors {
		got, err := card.ParseColor(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := card.ParseColor("None")
	assert.Error(t, err)
}

func TestCanPlayOn(t *testing.T) {
	red5 := card.NumberCard(card.Red, 5)
	blue5 := card.NumberCard(card.Blue, 5)
	blue7 := card.NumberCard(card.Blue, 7)
	redSkip := card.ActionCard(card.Red, card.KindSkip)
	blueSkip := card.ActionCard(card.Blue, card.KindSkip)

	assert.True(t, blue5.CanPlayOn(red5, card.Red), "same number")
	assert.False(t, blue7.CanPlayOn(red5, card.Red), "different colour and number")
	assert.True(t, card.NumberCard(card.Red, 1).CanPlayOn(red5, card.Red), "same colour")
	assert.True(t, blueSkip.CanPlayOn(redSkip, card.Red), "same action")
	assert.False(t, blueSkip.CanPlayOn(red5, card.Red))
	assert.True(t, card.Wild.CanPlayOn(red5, card.Red))
	assert.True(t, card.WildDraw.CanPlayOn(blueSkip, card.Blue))

	// After a wild the override colour is the only match.
	assert.True(t, blue7.CanPlayOn(card.Wild, card.Blue))
	assert.False(t, blue7.CanPlayOn(card.Wild, card.Green))
	// A Wild_Draw left without a colour takes anything.
	assert.True(t, blue7.CanPlayOn(card.WildDraw, card.ColorNone))
	assert.True(t, redSkip.CanPlayOn(card.WildDraw, card.ColorNone))
	// Override beats the top card's own colour.
	assert.False(t, card.NumberCard(card.Red, 1).CanPlayOn(red5, card.Green))
	assert.True(t, card.NumberCard(card.Green, 1).CanPlayOn(red5, card.Green))
}

func TestCryptoSourcePanicsOnZero(t *testing.T) {
	src := card.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestPropertyParseInvertsString(t *testing.T) {
	deck := card.NewDeck()
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.SampledFrom(deck).Draw(t, "card")
		got, err := card.Parse(c.String())
		if err != nil || got != c {
			t.Fatalf("Parse(%q) = %v, %v", c.String(), got, err)
		}
	})
}

func TestPropertyShufflePreservesMultiset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		deck := card.NewDeck()
		before := map[card.Card]int{}
		for _, c := range deck {
			before[c]++
		}
		card.Shuffle(deck, pcgSource{rand.New(rand.NewPCG(seed, seed^0x9e3779b9))})
		after := map[card.Card]int{}
		for _, c := range deck {
			after[c]++
		}
		if len(deck) != card.DeckSize {
			t.Fatalf("deck size %d", len(deck))
		}
		for c, n := range before {
			if after[c] != n {
				t.Fatalf("count of %s changed: %d -> %d", c, n, after[c])
			}
		}
	})
}

func TestPropertyCryptoSourceInRange(t *testing.T) {
	src := card.NewCryptoSource()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		v := src.Intn(n)
		if v < 0 || v >= n {
			t.Fatalf("Intn(%d) = %d", n, v)
		}
	})
}
