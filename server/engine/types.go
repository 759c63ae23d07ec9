package engine

type ActionKind string

const (
	Fold  ActionKind = "fold"
	Check ActionKind = "check"
	Call  ActionKind = "call"
	Raise ActionKind = "raise"
)

// Action is a seat's move. Amount is only meaningful for Raise and is the
// new total push for the current street.
type Action struct {
	Kind   ActionKind `json:"action"`
	Amount int        `json:"to,omitempty"`
}

type Card struct {
	Rank int
	Suit byte
} // e.g. "As" => rank 14, suit 's'
