// Package results turns match outcome messages into rating changes and a
// persisted game result.
package results

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"pokerarena/server/match"
	"pokerarena/server/metrics"
	"pokerarena/server/rating"
	"pokerarena/server/store"
)

// Message is what the gameplay worker publishes for every finished match.
// Exactly one of Status and Error is set for ladder games; validation games
// always carry Status and may carry the Error that failed them.
type Message struct {
	ID     string         `msgpack:"id"`
	Status *match.Outcome `msgpack:"status,omitempty"`
	Error  *match.Error   `msgpack:"error,omitempty"`
}

var ErrEmptyMessage = errors.New("message has neither status nor error")

type Store interface {
	GameRatings(ctx context.Context, id string) (store.Game, error)
	RecordLadderResult(ctx context.Context, g store.Game, r store.Result) error
	RecordValidationResult(ctx context.Context, botID int64, passed bool, r store.Result) error
}

type Handler struct {
	Store      Store
	Elo        rating.Elo
	StartStack int
	Log        *zap.Logger
	Metrics    metrics.Metrics
}

func NewHandler(s Store, elo rating.Elo, startStack int, log *zap.Logger, m metrics.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Handler{Store: s, Elo: elo, StartStack: startStack, Log: log, Metrics: m}
}

// Handle persists one record for msg. Errors are returned unretried so the
// delivery can be nacked.
func (h *Handler) Handle(ctx context.Context, msg Message) error {
	err := h.handle(ctx, msg)
	if err != nil {
		h.Metrics.IncResultFailed()
		h.Log.Error("failed to record result", zap.String("id", msg.ID), zap.Error(err))
	}
	return err
}

func (h *Handler) handle(ctx context.Context, msg Message) error {
	if msg.Status == nil && msg.Error == nil {
		return fmt.Errorf("%s: %w", msg.ID, ErrEmptyMessage)
	}
	if msg.Status != nil && msg.Status.IsValidation() {
		return h.validation(ctx, msg)
	}

	var out match.Outcome
	if msg.Status != nil {
		out = *msg.Status
	}
	scores := rating.Score(out, msg.Error, h.StartStack)

	game, err := h.Store.GameRatings(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}
	dDef, dChal := h.Elo.Deltas(game.DefenderRating, game.ChallengerRating, out, msg.Error, scores)
	h.Log.Info("ladder result",
		zap.String("id", msg.ID),
		zap.Int("defender_score", scores.Defender),
		zap.Int("challenger_score", scores.Challenger),
		zap.Float64("defender_rating_change", dDef),
		zap.Float64("challenger_rating_change", dChal))

	r := record(msg, scores)
	r.DefenderRatingChange, r.ChallengerRatingChange = dDef, dChal
	if err := h.Store.RecordLadderResult(ctx, game, r); err != nil {
		return err
	}
	h.Metrics.IncResultRecorded(true)
	return nil
}

func (h *Handler) validation(ctx context.Context, msg Message) error {
	botID, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("validation game id %q is not a bot id: %w", msg.ID, err)
	}
	passed := msg.Status.Kind == match.ValidationSucceeded
	h.Log.Info("validation result", zap.Int64("bot_id", botID), zap.Bool("passed", passed))

	if err := h.Store.RecordValidationResult(ctx, botID, passed, record(msg, rating.Scores{})); err != nil {
		return err
	}
	h.Metrics.IncResultRecorded(false)
	return nil
}

func record(msg Message, s rating.Scores) store.Result {
	r := store.Result{ID: msg.ID, DefenderScore: s.Defender, ChallengerScore: s.Challenger}
	if e := msg.Error; e != nil {
		kind := string(e.Kind)
		r.ErrorType = &kind
		if e.Attributable() {
			seat := int(e.Seat)
			r.ErrorBot = &seat
		}
	}
	return r
}
