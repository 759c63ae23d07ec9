package match

import "pokerarena/server/engine"

// SeatStats are per-bot tendencies over the rounds of one match.
type SeatStats struct {
	Hands    int
	VPIP     int
	PFR      int
	SawFlop  int
	Calls    int
	Aggr     int
	Folds    int
	WTSD     int
	WSD      int
	NetChips int

	vpipHand bool
	pfrHand  bool
}

// AF is the aggression factor, raises per call.
func (s *SeatStats) AF() float64 {
	if s.Calls == 0 {
		return float64(s.Aggr)
	}
	return float64(s.Aggr) / float64(s.Calls)
}

func (s *SeatStats) BBPer100() float64 {
	if s.Hands == 0 {
		return 0
	}
	return (float64(s.NetChips) / engine.BigBlind) / (float64(s.Hands) / 100.0)
}

func (s *SeatStats) startHand() {
	s.Hands++
	s.vpipHand, s.pfrHand = false, false
}

// addAction records a as taken by this seat on street round.
func (s *SeatStats) addAction(a engine.Action, round int) {
	switch a.Kind {
	case engine.Fold:
		s.Folds++
	case engine.Call:
		s.Calls++
	case engine.Raise:
		s.Aggr++
	}
	if round != 0 {
		return
	}
	if (a.Kind == engine.Call || a.Kind == engine.Raise) && !s.vpipHand {
		s.vpipHand = true
		s.VPIP++
	}
	if a.Kind == engine.Raise && !s.pfrHand {
		s.pfrHand = true
		s.PFR++
	}
}

// endHand closes the round for both seats. before holds the seat-indexed
// stacks at the deal.
func endHand(stats *[2]SeatStats, g *engine.GameState, button int, before, after [2]int) {
	showdown := g.Folded() < 0
	for s := range stats {
		st := &stats[s]
		st.NetChips += after[s] - before[s]
		if g.Round > 0 {
			st.SawFlop++
		}
		if showdown {
			st.WTSD++
			if g.Winner() == s^button {
				st.WSD++
			}
		}
	}
}
