//go:build unix

package match

import (
	"context"
	"math/rand"
	"os/exec"
	"testing"
	"time"

	"pokerarena/server/sandbox"
)

func shellBot(t *testing.T, script string) *sandbox.Process {
	t.Helper()
	p, err := sandbox.Start(exec.Command("sh", "-c", script))
	if err != nil {
		t.Fatalf("start bot: %v", err)
	}
	t.Cleanup(p.Kill)
	return p
}

const folder = `while read l; do case "$l" in S*) echo F;; esac; done`

func assertReaped(t *testing.T, procs ...*sandbox.Process) {
	t.Helper()
	for _, p := range procs {
		select {
		case <-p.Done():
		default:
			t.Fatalf("bot %d still running after match ended", p.Pid())
		}
	}
}

func TestRealBotsCompleteMatch(t *testing.T) {
	d, c := shellBot(t, folder), shellBot(t, folder)
	m := New("real", [2]Bot{d, c}, nil, Config{Rounds: 6, Timeout: 2 * time.Second, Rand: rand.New(rand.NewSource(3))}, nil)

	out, err := m.Play(context.Background())
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if out.Kind != ScoreChanged || out.Delta != 0 || m.RoundsPlayed() != 6 {
		t.Fatalf("outcome %+v after %d rounds", out, m.RoundsPlayed())
	}
	assertReaped(t, d, c)
}

func TestRealBotTimeout(t *testing.T) {
	d, c := shellBot(t, `while read l; do :; done`), shellBot(t, folder)
	m := New("slow", [2]Bot{d, c}, nil, Config{Rounds: 3, Timeout: 100 * time.Millisecond}, nil)

	_, err := m.Play(context.Background())
	me := AsError(err)
	if me == nil || me.Kind != Timeout || me.Seat != Defender {
		t.Fatalf("expected defender timeout, got %v", err)
	}
	assertReaped(t, d, c)
}

func TestRealBotCrashIsRuntimeFailure(t *testing.T) {
	d, c := shellBot(t, folder), shellBot(t, `read l; exit 3`)
	m := New("crash", [2]Bot{d, c}, nil, Config{Rounds: 3, Timeout: 2 * time.Second}, nil)

	_, err := m.Play(context.Background())
	me := AsError(err)
	if me == nil || me.Kind != RuntimeFailure || me.Seat != Challenger {
		t.Fatalf("expected challenger runtime failure, got %v", err)
	}
	assertReaped(t, d, c)
}
