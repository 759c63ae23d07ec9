package engine

import (
	poker "github.com/paulhankin/poker"
)

// Convert our engine.Card -> library card.
func toPH(c Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case 'c':
		s = poker.Club
	case 'd':
		s = poker.Diamond
	case 'h':
		s = poker.Heart
	case 's':
		s = poker.Spade
	default:
		s = poker.Club
	}
	// Our ranks: 2..14 (Ace=14). Library: 1..13 (Ace=1).
	var r poker.Rank
	if c.Rank == 14 {
		r = poker.Rank(1)
	} else {
		r = poker.Rank(c.Rank)
	}
	card, _ := poker.MakeCard(s, r)
	return card
}

// handScore evaluates two hole cards plus a full board. Larger is stronger.
func handScore(hole []Card, board []Card) int16 {
	var a7 [7]poker.Card
	for i, c := range hole {
		a7[i] = toPH(c)
	}
	for i, c := range board {
		a7[len(hole)+i] = toPH(c)
	}
	return poker.Eval7(&a7)
}

// Describe returns the library's name for a seat's best hand, or "" before
// the board is complete.
func (g *GameState) Describe(seat int) string {
	if len(g.Community) < 5 {
		return ""
	}
	all := append(append([]Card{}, g.Players[seat].Hole...), g.Community...)
	out := make([]poker.Card, len(all))
	for i, c := range all {
		out[i] = toPH(c)
	}
	d, err := poker.Describe(out)
	if err != nil {
		return ""
	}
	return d
}
