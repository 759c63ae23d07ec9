package match

type OutcomeKind string

const (
	ScoreChanged        OutcomeKind = "SCORE_CHANGED"
	ValidationSucceeded OutcomeKind = "VALIDATION_SUCCEEDED"
	ValidationFailed    OutcomeKind = "VALIDATION_FAILED"
)

// Outcome is the result of a match that ran to completion. Delta is the
// defender's chip change and is only set for ScoreChanged.
type Outcome struct {
	Kind  OutcomeKind `msgpack:"kind"`
	Delta int         `msgpack:"delta,omitempty"`
}

func (o Outcome) IsValidation() bool {
	return o.Kind == ValidationSucceeded || o.Kind == ValidationFailed
}
