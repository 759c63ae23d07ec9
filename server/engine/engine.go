package engine

import (
	"errors"
	"fmt"
)

const (
	SmallBlind = 1
	BigBlind   = 2

	holeCards  = 2
	boardCards = 5
	dealSize   = 2*holeCards + boardCards
)

var (
	ErrIllegalAction = errors.New("illegal action")
	ErrRoundOver     = errors.New("round is over")
)

type Player struct {
	Stack  int
	Pushed int
	Hole   []Card
	acted  bool
}

// GameState is one round of heads-up play. Seat 0 holds the button and posts
// the small blind; seat 1 posts the big blind.
type GameState struct {
	Players    [2]Player
	TargetPush int
	Pot        int
	Community  []Card
	// Round counts card-reveal phases: 0 preflop, then +1 per reveal.
	Round int

	board  []Card
	turn   int
	over   bool
	folded int
	winner int
}

// New deals a round from the first nine cards of deck and posts the blinds.
func New(stacks [2]int, deck []Card) (*GameState, error) {
	if len(deck) < dealSize {
		return nil, fmt.Errorf("deck has %d cards, need %d", len(deck), dealSize)
	}
	for i, s := range stacks {
		if s <= 0 {
			return nil, fmt.Errorf("seat %d has no chips", i)
		}
	}
	g := &GameState{folded: -1, winner: -1}
	for i := range g.Players {
		g.Players[i].Stack = stacks[i]
		g.Players[i].Hole = append([]Card{}, deck[i*holeCards:(i+1)*holeCards]...)
	}
	g.board = append([]Card{}, deck[2*holeCards:dealSize]...)
	g.Community = []Card{}

	g.push(0, SmallBlind)
	g.push(1, BigBlind)
	g.turn = 0 // HU preflop: button first
	if g.streetClosed() {
		g.closeStreet()
	}
	return g, nil
}

// WhoseTurn reports the seat that must act next; ok is false once the round
// is over.
func (g *GameState) WhoseTurn() (seat int, ok bool) {
	if g.over {
		return 0, false
	}
	return g.turn, true
}

func (g *GameState) RoundOver() bool { return g.over }

func (g *GameState) Stack(seat int) int { return g.Players[seat].Stack }

// Folded returns the seat that folded, or -1.
func (g *GameState) Folded() int { return g.folded }

// Winner returns the seat that took the pot, or -1 for a split or an
// unfinished round.
func (g *GameState) Winner() int { return g.winner }

// Legal lists the action kinds available to the seat on turn.
func (g *GameState) Legal() []ActionKind {
	if g.over {
		return nil
	}
	p := g.Players[g.turn]
	var out []ActionKind
	if p.Pushed >= g.TargetPush {
		out = append(out, Check, Call)
	} else {
		out = append(out, Fold, Call)
	}
	if p.Pushed+p.Stack > g.TargetPush {
		out = append(out, Raise)
	}
	return out
}

// RaiseBounds returns the smallest and largest legal raise totals for the
// seat on turn.
func (g *GameState) RaiseBounds() (lo, hi int) {
	p := g.Players[g.turn]
	return g.TargetPush + 1, p.Pushed + p.Stack
}

// Post applies the action of the seat on turn. A rejected action leaves the
// state untouched.
func (g *GameState) Post(a Action) error {
	if g.over {
		return ErrRoundOver
	}
	s := g.turn
	p := &g.Players[s]
	switch a.Kind {
	case Fold:
		g.folded = s
		g.award(1 - s)
		return nil
	case Check:
		if p.Pushed < g.TargetPush {
			return fmt.Errorf("%w: check with %d owed", ErrIllegalAction, g.TargetPush-p.Pushed)
		}
	case Call:
		g.push(s, g.TargetPush-p.Pushed)
	case Raise:
		if a.Amount <= g.TargetPush {
			return fmt.Errorf("%w: raise to %d does not exceed %d", ErrIllegalAction, a.Amount, g.TargetPush)
		}
		if a.Amount-p.Pushed > p.Stack {
			return fmt.Errorf("%w: raise to %d exceeds stack %d", ErrIllegalAction, a.Amount, p.Stack+p.Pushed)
		}
		g.push(s, a.Amount-p.Pushed)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrIllegalAction, a.Kind)
	}
	p.acted = true

	if g.streetClosed() {
		g.closeStreet()
		return nil
	}
	g.turn = 1 - s
	return nil
}

func (g *GameState) push(seat, amt int) {
	p := &g.Players[seat]
	if amt > p.Stack {
		amt = p.Stack
	}
	if amt < 0 {
		amt = 0
	}
	p.Stack -= amt
	p.Pushed += amt
	if p.Pushed > g.TargetPush {
		g.TargetPush = p.Pushed
	}
}

func (g *GameState) streetClosed() bool {
	for s := range g.Players {
		me, other := g.Players[s], g.Players[1-s]
		if me.Stack == 0 && other.Pushed >= me.Pushed {
			return true
		}
	}
	a, b := g.Players[0], g.Players[1]
	return a.Pushed == b.Pushed && a.acted && b.acted
}

// closeStreet returns any uncalled chips, moves the matched pushes into the
// pot and reveals the next cards, running the board out when a seat is all-in.
func (g *GameState) closeStreet() {
	matched := min(g.Players[0].Pushed, g.Players[1].Pushed)
	for i := range g.Players {
		p := &g.Players[i]
		p.Stack += p.Pushed - matched
		p.Pushed = 0
		p.acted = false
	}
	g.Pot += 2 * matched
	g.TargetPush = 0

	allIn := g.Players[0].Stack == 0 || g.Players[1].Stack == 0
	if len(g.Community) == boardCards || allIn {
		for len(g.Community) < boardCards {
			g.reveal()
		}
		g.showdown()
		return
	}
	g.reveal()
	g.turn = 1 // HU postflop: big blind first
}

func (g *GameState) reveal() {
	n := 3
	if len(g.Community) > 0 {
		n = len(g.Community) + 1
	}
	g.Community = g.board[:n]
	g.Round++
}

func (g *GameState) showdown() {
	s0 := handScore(g.Players[0].Hole, g.Community)
	s1 := handScore(g.Players[1].Hole, g.Community)
	switch {
	case s0 > s1:
		g.award(0)
	case s1 > s0:
		g.award(1)
	default:
		half := g.Pot / 2
		g.Players[0].Stack += half
		g.Players[1].Stack += g.Pot - half
		g.Pot = 0
		g.over = true
	}
}

func (g *GameState) award(seat int) {
	total := g.Pot + g.Players[0].Pushed + g.Players[1].Pushed
	g.Players[0].Pushed, g.Players[1].Pushed = 0, 0
	g.Pot = 0
	g.Players[seat].Stack += total
	g.winner = seat
	g.over = true
}
