package card

// DeckSize is the number of cards in a standard deck.
const DeckSize = 108

// NewDeck returns an unshuffled standard deck: per colour one 0, two each of
// 1-9 and two each of Draw, Reverse and Skip; plus four Wild and four Wild_Draw.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, c := range Colors {
		deck = append(deck, NumberCard(c, 0))
		for i := 0; i < 2; i++ {
			for n := 1; n <= 9; n++ {
				deck = append(deck, NumberCard(c, n))
			}
			deck = append(deck,
				ActionCard(c, KindDraw),
				ActionCard(c, KindReverse),
				ActionCard(c, KindSkip),
			)
		}
	}
	for i := 0; i < 4; i++ {
		deck = append(deck, Wild, WildDraw)
	}
	return deck
}

// Shuffle permutes cards in place using src.
func Shuffle(cards []Card, src Source) {
	for i := len(cards) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
