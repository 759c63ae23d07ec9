package match

import (
	"errors"
	"fmt"
	"strconv"

	"pokerarena/server/engine"
)

var ErrUnparseable = errors.New("unparseable action")

// ParseAction reads one response line: X, F, C or R followed by decimal
// digits. Nothing else is accepted, not even surrounding whitespace.
func ParseAction(line string) (engine.Action, error) {
	switch line {
	case "X":
		return engine.Action{Kind: engine.Check}, nil
	case "F":
		return engine.Action{Kind: engine.Fold}, nil
	case "C":
		return engine.Action{Kind: engine.Call}, nil
	}
	if len(line) < 2 || line[0] != 'R' {
		return engine.Action{}, fmt.Errorf("%w: %q", ErrUnparseable, line)
	}
	digits := line[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return engine.Action{}, fmt.Errorf("%w: %q", ErrUnparseable, line)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return engine.Action{}, fmt.Errorf("%w: %q", ErrUnparseable, line)
	}
	return engine.Action{Kind: engine.Raise, Amount: n}, nil
}
