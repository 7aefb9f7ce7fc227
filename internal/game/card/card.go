// Package card defines Uno card faces, their wire names, the standard deck
// and the playability rule.
package card

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a card or wild-override colour. ColorNone marks wild cards.
type Color int

const (
	ColorNone Color = iota
	Yellow
	Blue
	Green
	Red
)

// Colors lists the four playable colours in wire order.
var Colors = []Color{Yellow, Blue, Green, Red}

var colorNames = map[Color]string{
	Yellow: "Yellow",
	Blue:   "Blue",
	Green:  "Green",
	Red:    "Red",
}

// String returns the wire spelling of the colour.
func (c Color) String() string {
	if n, ok := colorNames[c]; ok {
		return n
	}
	return "None"
}

// ParseColor parses a wire colour name.
func ParseColor(s string) (Color, error) {
	for c, n := range colorNames {
		if n == s {
			return c, nil
		}
	}
	return ColorNone, fmt.Errorf("unknown colour %q", s)
}

// Kind classifies a card face.
type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindDraw
	KindReverse
	KindSkip
	KindWild
	KindWildDraw
	KindCover
)

var actionNames = map[Kind]string{
	KindDraw:    "Draw",
	KindReverse: "Reverse",
	KindSkip:    "Skip",
}

// Card is one face. The zero value is None.
type Card struct {
	Color  Color
	Kind   Kind
	Number int
}

// Well-known faces without a colour.
var (
	None     = Card{}
	Cover    = Card{Kind: KindCover}
	Wild     = Card{Kind: KindWild}
	WildDraw = Card{Kind: KindWildDraw}
)

// NumberCard returns the numbered face of colour c.
func NumberCard(c Color, n int) Card { return Card{Color: c, Kind: KindNumber, Number: n} }

// ActionCard returns the action face k of colour c.
func ActionCard(c Color, k Kind) Card { return Card{Color: c, Kind: k} }

// IsWild reports whether the card may be played on anything.
func (c Card) IsWild() bool { return c.Kind == KindWild || c.Kind == KindWildDraw }

// Playable reports whether the card is one of the 54 faces that exist in a deck.
func (c Card) Playable() bool {
	switch c.Kind {
	case KindWild, KindWildDraw:
		return c.Color == ColorNone && c.Number == 0
	case KindNumber:
		return c.Color != ColorNone && c.Number >= 0 && c.Number <= 9
	case KindDraw, KindReverse, KindSkip:
		return c.Color != ColorNone && c.Number == 0
	}
	return false
}

// String returns the wire spelling, e.g. "Red_7", "Blue_Skip", "Wild_Draw".
func (c Card) String() string {
	switch c.Kind {
	case KindNone:
		return "None"
	case KindCover:
		return "Cover"
	case KindWild:
		return "Wild"
	case KindWildDraw:
		return "Wild_Draw"
	case KindNumber:
		return c.Color.String() + "_" + strconv.Itoa(c.Number)
	default:
		return c.Color.String() + "_" + actionNames[c.Kind]
	}
}

// Parse converts a wire spelling back into a Card.
func Parse(s string) (Card, error) {
	switch s {
	case "None":
		return None, nil
	case "Cover":
		return Cover, nil
	case "Wild":
		return Wild, nil
	case "Wild_Draw":
		return WildDraw, nil
	}

	colorName, face, ok := strings.Cut(s, "_")
	if !ok {
		return None, fmt.Errorf("unknown card %q", s)
	}
	col, err := ParseColor(colorName)
	if err != nil {
		return None, fmt.Errorf("unknown card %q", s)
	}
	for k, n := range actionNames {
		if n == face {
			return ActionCard(col, k), nil
		}
	}
	if len(face) == 1 && face[0] >= '0' && face[0] <= '9' {
		return NumberCard(col, int(face[0]-'0')), nil
	}
	return None, fmt.Errorf("unknown card %q", s)
}

// CanPlayOn reports whether c may be placed on top given the active colour,
// which is the wild override when one is set and top's colour otherwise.
// A wild top with no colour named accepts any card.
func (c Card) CanPlayOn(top Card, active Color) bool {
	if c.IsWild() {
		return true
	}
	if c.Color == active {
		return true
	}
	if top.IsWild() {
		return active == ColorNone
	}
	if c.Kind == KindNumber {
		return top.Kind == KindNumber && c.Number == top.Number
	}
	return c.Kind == top.Kind
}
