// Package match drives two bot processes through a series of heads-up
// rounds over the line protocol and reports the defender's net result.
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pokerarena/server/engine"
	"pokerarena/server/sandbox"
)

const (
	DefaultRounds     = 100
	DefaultTimeout    = time.Second
	DefaultStartStack = 50
)

// Bot is the orchestrator's view of a launched bot. *sandbox.Process
// implements it.
type Bot interface {
	WriteLine(msg string) error
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
	Kill()
}

type Config struct {
	Rounds     int
	Timeout    time.Duration
	StartStack int
	// Rand shuffles every round's deck. Nil seeds from the clock.
	Rand *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.StartStack <= 0 {
		c.StartStack = DefaultStartStack
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Match exclusively owns both bots from New until Close.
type Match struct {
	ID string

	bots   [2]Bot
	cfg    Config
	events io.Writer
	log    *zap.Logger

	start   time.Time
	stacks  [2]int
	button  int
	played  int
	buttons []int
	stats   [2]SeatStats

	closeOnce sync.Once
}

// New takes ownership of bots. events receives the timestamped protocol
// transcript.
func New(id string, bots [2]Bot, events io.Writer, cfg Config, log *zap.Logger) *Match {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = io.Discard
	}
	return &Match{
		ID:     id,
		bots:   bots,
		cfg:    cfg,
		events: events,
		log:    log.With(zap.String("match_id", id)),
		stacks: [2]int{cfg.StartStack, cfg.StartStack},
	}
}

// Play runs up to cfg.Rounds rounds and returns the defender's chip delta.
// Both bots are killed before Play returns, whatever the exit path.
func (m *Match) Play(ctx context.Context) (Outcome, error) {
	defer m.Close()
	m.start = time.Now()
	m.log.Info("match started", zap.Int("rounds", m.cfg.Rounds), zap.Duration("timeout", m.cfg.Timeout))

	for i := 0; i < m.cfg.Rounds; i++ {
		if m.stacks[0] == 0 || m.stacks[1] == 0 {
			m.event(NoSeat, ">", "Ending because a bot has an empty stack")
			break
		}
		m.event(NoSeat, ">", fmt.Sprintf("round %d/%d", i+1, m.cfg.Rounds))
		if err := m.playRound(ctx); err != nil {
			me := AsError(err)
			m.event(NoSeat, ">", me.Error())
			m.log.Warn("match ended with error",
				zap.String("kind", string(me.Kind)),
				zap.Stringer("seat", me.Seat),
				zap.Int("round", i+1),
				zap.Error(me))
			return Outcome{}, me
		}
		m.played++
		m.button = 1 - m.button
	}

	delta := m.stacks[0] - m.cfg.StartStack
	d, c := m.stats[Defender], m.stats[Challenger]
	m.log.Info("match finished",
		zap.Int("rounds_played", m.played),
		zap.Int("delta", delta),
		zap.Float64("defender_af", d.AF()),
		zap.Float64("challenger_af", c.AF()),
		zap.Int("defender_vpip", d.VPIP),
		zap.Int("challenger_vpip", c.VPIP))
	return Outcome{Kind: ScoreChanged, Delta: delta}, nil
}

// Close kills both bots. It is safe to call more than once.
func (m *Match) Close() {
	m.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for _, b := range m.bots {
			if b == nil {
				continue
			}
			wg.Add(1)
			go func(b Bot) {
				defer wg.Done()
				b.Kill()
			}(b)
		}
		wg.Wait()
	})
}

// Stacks returns the seat-indexed stacks as of the last completed round.
func (m *Match) Stacks() [2]int { return m.stacks }

func (m *Match) RoundsPlayed() int { return m.played }

// Stats returns per-seat play statistics for the rounds played so far.
func (m *Match) Stats() [2]SeatStats { return m.stats }

// Buttons lists the button seat of every round started so far.
func (m *Match) Buttons() []int { return append([]int(nil), m.buttons...) }

// seatOf maps an engine seat (0 is the button) to the physical seat.
func (m *Match) seatOf(engineSeat int) Seat { return Seat(engineSeat ^ m.button) }

// winner maps the engine's pot winner to a physical seat, NoSeat on a split.
func (m *Match) winner(g *engine.GameState) Seat {
	if w := g.Winner(); w >= 0 {
		return m.seatOf(w)
	}
	return NoSeat
}

func (m *Match) playRound(ctx context.Context) error {
	m.buttons = append(m.buttons, m.button)
	g, err := engine.New([2]int{m.stacks[m.button], m.stacks[1-m.button]}, engine.ShuffledDeck(m.cfg.Rand))
	if err != nil {
		return InternalError(fmt.Errorf("deal: %w", err))
	}
	before := m.stacks
	m.stats[Defender].startHand()
	m.stats[Challenger].startHand()

	for _, s := range []Seat{Defender, Challenger} {
		if err := m.send(s, fmt.Sprintf("P %d", int(s)^m.button)); err != nil {
			return err
		}
	}

	lastRound := -1
	for {
		if err := ctx.Err(); err != nil {
			return InternalError(err)
		}
		for _, s := range []Seat{Defender, Challenger} {
			m.stacks[s] = g.Stack(int(s) ^ m.button)
		}

		if g.RoundOver() {
			endHand(&m.stats, g, m.button, before, m.stacks)
			if g.Folded() < 0 {
				m.log.Debug("showdown",
					zap.String("defender_hand", g.Describe(int(Defender)^m.button)),
					zap.String("challenger_hand", g.Describe(int(Challenger)^m.button)),
					zap.Stringer("winner", m.winner(g)))
			}
			for _, s := range []Seat{Defender, Challenger} {
				if err := m.send(s, "E"); err != nil {
					return err
				}
			}
			return nil
		}

		if g.Round != lastRound {
			lastRound = g.Round
			for _, s := range []Seat{Defender, Challenger} {
				if err := m.send(s, cardsMessage(g, int(s)^m.button)); err != nil {
					return err
				}
			}
		}

		turn, ok := g.WhoseTurn()
		if !ok {
			return InternalError(errors.New("no seat to act in a live round"))
		}
		seat := m.seatOf(turn)
		p0, p1 := g.Players[0], g.Players[1]
		if err := m.send(seat, fmt.Sprintf("S %d %d %d %d %d", g.TargetPush, p0.Pushed, p1.Pushed, p0.Stack, p1.Stack)); err != nil {
			return err
		}

		line, err := m.bots[seat].ReadLine(ctx, m.cfg.Timeout)
		if err != nil {
			return classifyRead(seat, err)
		}
		m.event(seat, ">", line)

		action, err := ParseAction(line)
		if err != nil {
			return SeatError(InvalidAction, seat, err)
		}
		street := g.Round
		if err := g.Post(action); err != nil {
			return SeatError(InvalidAction, seat, err)
		}
		m.stats[seat].addAction(action, street)
	}
}

func (m *Match) send(seat Seat, msg string) error {
	m.event(seat, "<", msg)
	if err := m.bots[seat].WriteLine(msg); err != nil {
		return SeatError(RuntimeFailure, seat, err)
	}
	return nil
}

func (m *Match) event(who Seat, dir, msg string) {
	fmt.Fprintf(m.events, "%dms %s %s %s\n", time.Since(m.start).Milliseconds(), who, dir, msg)
}

func classifyRead(seat Seat, err error) *Error {
	switch {
	case errors.Is(err, sandbox.ErrReadTimeout):
		return SeatError(Timeout, seat, err)
	case errors.Is(err, sandbox.ErrResourceLimit):
		return SeatError(ResourceLimit, seat, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return InternalError(err)
	}
	return SeatError(RuntimeFailure, seat, err)
}

func cardsMessage(g *engine.GameState, engineSeat int) string {
	cards := append(append([]engine.Card{}, g.Players[engineSeat].Hole...), g.Community...)
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return "C " + strings.Join(parts, " ")
}
