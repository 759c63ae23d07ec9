// Package rating turns match outcomes into raw scores and Elo deltas.
package rating

import (
	"math"

	"pokerarena/server/match"
)

const MaxScore = 100

// Scores are the raw per-seat scores on the ±100 scale.
type Scores struct {
	Defender   int
	Challenger int
}

// Score maps a finished match to raw scores. err takes precedence over out.
func Score(out match.Outcome, err *match.Error, startStack int) Scores {
	if err != nil {
		if !err.Attributable() {
			return Scores{Defender: MaxScore, Challenger: MaxScore}
		}
		if err.Seat == match.Defender {
			return Scores{Defender: -MaxScore, Challenger: MaxScore}
		}
		return Scores{Defender: MaxScore, Challenger: -MaxScore}
	}
	if out.Kind != match.ScoreChanged || startStack <= 0 {
		return Scores{}
	}
	s := int(math.Round(float64(MaxScore) * float64(out.Delta) / float64(startStack)))
	s = int(clamp(float64(s), -MaxScore, MaxScore))
	return Scores{Defender: s, Challenger: -s}
}

// Normalize maps a raw defender score onto [0,1].
func Normalize(raw int) float64 {
	return clamp((float64(raw)+MaxScore)/(2*MaxScore), 0, 1)
}

// Ladder reports whether an outcome moves ratings. Validation games never
// do, and neither does an Internal error, which is charged to no one.
func Ladder(out match.Outcome, err *match.Error) bool {
	if err != nil {
		return err.Attributable()
	}
	return out.Kind == match.ScoreChanged
}

// Deltas is the rating change for both seats, zero when the outcome is not
// a ladder result.
func (e Elo) Deltas(rDef, rChal float64, out match.Outcome, err *match.Error, s Scores) (dDef, dChal float64) {
	if !Ladder(out, err) {
		return 0, 0
	}
	return e.Update(rDef, rChal, Normalize(s.Defender))
}
