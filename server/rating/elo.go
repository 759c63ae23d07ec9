package rating

import "math"

const (
	DefaultK      = 32.0
	DefaultRating = 1000.0
	eloScale      = 400.0
)

// Elo is a fixed-K logistic rating update.
type Elo struct {
	K float64
}

func NewElo(k float64) Elo {
	if k <= 0 {
		k = DefaultK
	}
	return Elo{K: k}
}

// Expect returns a's expected score against b.
func (e Elo) Expect(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/eloScale))
}

// Update returns the rating changes for a defender rated rDef and a
// challenger rated rChal after the defender scored sDef in [0,1].
func (e Elo) Update(rDef, rChal, sDef float64) (dDef, dChal float64) {
	sDef = clamp(sDef, 0, 1)
	dDef = e.K * (sDef - e.Expect(rDef, rChal))
	return dDef, -dDef
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
