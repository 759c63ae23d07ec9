package match

import (
	"errors"
	"testing"

	"pokerarena/server/engine"
)

func TestParseAction(t *testing.T) {
	good := map[string]engine.Action{
		"X":     {Kind: engine.Check},
		"F":     {Kind: engine.Fold},
		"C":     {Kind: engine.Call},
		"R1234": {Kind: engine.Raise, Amount: 1234},
		"R0":    {Kind: engine.Raise, Amount: 0},
	}
	for in, want := range good {
		got, err := ParseAction(in)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseAction(%q) = %+v, want %+v", in, got, want)
		}
	}

	bad := []string{"R", "R1234a", "R-1234", "R-1", "R1234.0", "B", "", "x", "X ", " C", "R+5", "R99999999999999999999999"}
	for _, in := range bad {
		if _, err := ParseAction(in); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("ParseAction(%q) err = %v, want ErrUnparseable", in, err)
		}
	}
}
