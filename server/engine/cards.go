package engine

import (
	"math/rand"
	"time"
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

// ShuffledDeck returns all 52 cards in an order drawn from r.
func ShuffledDeck(r *rand.Rand) []Card {
	deck := make([]Card, 0, len(rankChars)*len(suitChars))
	for i := range len(suitChars) {
		for rank := 2; rank <= 14; rank++ {
			deck = append(deck, Card{Rank: rank, Suit: suitChars[i]})
		}
	}
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// NewDeck shuffles with a seeded source; seed 0 means "use the clock".
func NewDeck(seed int64) []Card {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return ShuffledDeck(rand.New(rand.NewSource(seed)))
}

// String renders the card as the wire form, rank then suit, e.g. "Td".
func (c Card) String() string {
	return string([]byte{rankChars[c.Rank-2], c.Suit})
}
