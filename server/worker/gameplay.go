// Package worker hosts the two bus consumers: gameplay plays requested
// matches and publishes their outcome, results persists those outcomes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokerarena/server/match"
	"pokerarena/server/metrics"
	"pokerarena/server/queue"
	"pokerarena/server/results"
	"pokerarena/server/sandbox"
)

type Kind string

const (
	KindLadder     Kind = "ladder"
	KindValidation Kind = "validation"
)

// Request asks for one match. For validation requests ID is the bot id and
// the bot plays itself.
type Request struct {
	ID         string `msgpack:"id"`
	Defender   string `msgpack:"defender"`
	Challenger string `msgpack:"challenger,omitempty"`
	Rounds     int    `msgpack:"rounds,omitempty"`
	Kind       Kind   `msgpack:"kind,omitempty"`
}

func (r Request) bots() [2]string {
	if r.Kind == KindValidation {
		id := r.Defender
		if id == "" {
			id = r.ID
		}
		return [2]string{id, id}
	}
	return [2]string{r.Defender, r.Challenger}
}

func (r Request) validate() error {
	if r.ID == "" {
		return errors.New("request has no id")
	}
	switch r.Kind {
	case "", KindLadder:
		if r.Defender == "" || r.Challenger == "" {
			return fmt.Errorf("ladder request %s needs two bots", r.ID)
		}
	case KindValidation:
	default:
		return fmt.Errorf("request %s has unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

var ErrLeaseHeld = errors.New("match is being played by another worker")

// Lease is satisfied by *lease.Leaser.
type Lease interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	Completed(ctx context.Context, id string) (bool, error)
}

// Acquirer is satisfied by *bots.Acquirer.
type Acquirer interface {
	AcquirePair(ctx context.Context, ids [2]string, dirs [2]string) ([2]*sandbox.Process, error)
}

const (
	dirDefender   = "bot_a"
	dirChallenger = "bot_b"
	eventsName    = "logs"
)

type Gameplay struct {
	Acquirer     Acquirer
	Bus          queue.Publisher
	Lease        Lease
	OutcomeTopic string
	Match        match.Config
	ScratchDir   string
	KeepScratch  bool
	Log          *zap.Logger
	Metrics      metrics.Metrics
}

// Run consumes match requests from subscription until ctx is cancelled.
func (g *Gameplay) Run(ctx context.Context, bus queue.Subscriber, subscription string) error {
	g.logger().Info("gameplay worker listening", zap.String("subscription", subscription))
	return bus.Receive(ctx, subscription, g.HandleRequest)
}

// HandleRequest plays one delivered request and publishes exactly one
// outcome for it. An error means the delivery should be redelivered.
func (g *Gameplay) HandleRequest(ctx context.Context, data []byte) error {
	var req Request
	if err := queue.Decode(data, &req); err != nil {
		g.logger().Error("dropping undecodable match request", zap.Error(err))
		return nil
	}
	if err := req.validate(); err != nil {
		g.logger().Error("dropping invalid match request", zap.Error(err))
		return nil
	}
	log := g.logger().With(zap.String("match_id", req.ID), zap.String("kind", string(req.Kind)))

	if g.Lease != nil {
		done, err := g.Lease.Completed(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("check completion: %w", err)
		}
		if done {
			log.Info("match already completed, acking redelivery")
			return nil
		}
		ok, err := g.Lease.Acquire(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		if !ok {
			g.metrics().IncLeaseContended()
			log.Info("match lease held elsewhere")
			return ErrLeaseHeld
		}
		defer func() {
			if err := g.Lease.Release(context.WithoutCancel(ctx), req.ID); err != nil {
				log.Warn("failed to release lease", zap.Error(err))
			}
		}()
	}

	msg := g.Play(ctx, req)
	if err := g.Bus.Publish(ctx, g.OutcomeTopic, msg); err != nil {
		return err
	}
	log.Info("outcome published", zap.Bool("error", msg.Error != nil))

	if g.Lease != nil {
		if err := g.Lease.MarkCompleted(context.WithoutCancel(ctx), req.ID); err != nil {
			log.Warn("failed to mark match completed", zap.Error(err))
		}
	}
	return nil
}

// Play runs req in a fresh scratch directory and returns the message to
// publish. It never fails: every problem becomes the message's Error.
func (g *Gameplay) Play(ctx context.Context, req Request) results.Message {
	log := g.logger().With(zap.String("match_id", req.ID))
	started := time.Now()

	scratch := filepath.Join(g.scratchRoot(), uuid.NewString())
	if !g.KeepScratch {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				log.Warn("failed to remove scratch dir", zap.String("dir", scratch), zap.Error(err))
			}
		}()
	}

	out, err := g.play(ctx, req, scratch, log)
	g.observe(out, err, time.Since(started))
	return toMessage(req, out, err)
}

func (g *Gameplay) play(ctx context.Context, req Request, scratch string, log *zap.Logger) (match.Outcome, error) {
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return match.Outcome{}, match.InternalError(fmt.Errorf("create scratch dir: %w", err))
	}
	log.Debug("scratch dir created", zap.String("dir", scratch))

	dirs := [2]string{filepath.Join(scratch, dirDefender), filepath.Join(scratch, dirChallenger)}
	procs, err := g.Acquirer.AcquirePair(ctx, req.bots(), dirs)
	if err != nil {
		return match.Outcome{}, err
	}

	events, err := os.Create(filepath.Join(scratch, eventsName))
	if err != nil {
		procs[0].Kill()
		procs[1].Kill()
		return match.Outcome{}, match.InternalError(fmt.Errorf("create event log: %w", err))
	}
	defer events.Close()

	cfg := g.Match
	if req.Rounds > 0 {
		cfg.Rounds = req.Rounds
	}
	m := match.New(req.ID, [2]match.Bot{procs[0], procs[1]}, events, cfg, log)
	out, err := m.Play(ctx)
	g.metrics().IncRoundsPlayed(m.RoundsPlayed())
	return out, err
}

func (g *Gameplay) observe(out match.Outcome, err error, took time.Duration) {
	label := string(out.Kind)
	if err != nil {
		kind := match.AsError(err).Kind
		g.metrics().IncMatchError(string(kind))
		label = "ERROR"
	}
	g.metrics().ObserveMatch(label, took.Seconds())
}

// toMessage maps a match result onto the outcome message. Validation games
// always carry a status; a failed one also carries its error.
func toMessage(req Request, out match.Outcome, err error) results.Message {
	msg := results.Message{ID: req.ID}
	if req.Kind == KindValidation {
		status := match.Outcome{Kind: match.ValidationSucceeded}
		if err != nil {
			status.Kind = match.ValidationFailed
			msg.Error = match.AsError(err)
		}
		msg.Status = &status
		return msg
	}
	if err != nil {
		msg.Error = match.AsError(err)
		return msg
	}
	msg.Status = &out
	return msg
}

func (g *Gameplay) scratchRoot() string {
	if g.ScratchDir == "" {
		return os.TempDir()
	}
	return g.ScratchDir
}

func (g *Gameplay) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

func (g *Gameplay) metrics() metrics.Metrics {
	if g.Metrics == nil {
		return metrics.Nop{}
	}
	return g.Metrics
}
