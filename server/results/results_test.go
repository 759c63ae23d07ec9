package results

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokerarena/server/match"
	"pokerarena/server/queue"
	"pokerarena/server/rating"
	"pokerarena/server/store"
)

type validationCall struct {
	BotID  int64
	Passed bool
	Result store.Result
}

// mockStore records calls; it is safe for concurrent use.
type mockStore struct {
	mu         sync.Mutex
	games      map[string]store.Game
	failWrites error

	Ladder     []store.Result
	Validation []validationCall
}

func newMockStore(games ...store.Game) *mockStore {
	m := &mockStore{games: map[string]store.Game{}}
	for _, g := range games {
		m.games[g.ID] = g
	}
	return m
}

func (m *mockStore) GameRatings(_ context.Context, id string) (store.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return store.Game{}, store.ErrNotFound
	}
	return g, nil
}

func (m *mockStore) RecordLadderResult(_ context.Context, _ store.Game, r store.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.Ladder = append(m.Ladder, r)
	return nil
}

func (m *mockStore) RecordValidationResult(_ context.Context, botID int64, passed bool, r store.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.Validation = append(m.Validation, validationCall{botID, passed, r})
	return nil
}

var game = store.Game{ID: "g1", Defender: 1, Challenger: 2, DefenderRating: 1000, ChallengerRating: 1000}

func newTestHandler(s Store) *Handler {
	return NewHandler(s, rating.NewElo(32), 50, nil, nil)
}

func TestInvalidActionRecordsFaultingSeat(t *testing.T) {
	s := newMockStore(game)
	h := newTestHandler(s)

	// round-trip through the wire encoding the workers use
	sent := Message{ID: "g1", Error: match.SeatError(match.InvalidAction, match.Challenger, errors.New(`unparseable action: "B"`))}
	data, err := queue.Encode(sent)
	require.NoError(t, err)
	var got Message
	require.NoError(t, queue.Decode(data, &got))

	require.NoError(t, h.Handle(context.Background(), got))
	require.Len(t, s.Ladder, 1)
	r := s.Ladder[0]
	require.NotNil(t, r.ErrorType)
	require.NotNil(t, r.ErrorBot)
	assert.Equal(t, "INVALID_ACTION", *r.ErrorType)
	assert.Equal(t, 1, *r.ErrorBot)
	assert.Equal(t, 100, r.DefenderScore)
	assert.Equal(t, -100, r.ChallengerScore)
	assert.Greater(t, r.DefenderRatingChange, 0.0)
	assert.Equal(t, -r.DefenderRatingChange, r.ChallengerRatingChange)
}

func TestScoreChangedRecordsScaledScores(t *testing.T) {
	s := newMockStore(game)
	h := newTestHandler(s)

	require.NoError(t, h.Handle(context.Background(), Message{ID: "g1", Status: &match.Outcome{Kind: match.ScoreChanged, Delta: -25}}))
	require.Len(t, s.Ladder, 1)
	r := s.Ladder[0]
	assert.Nil(t, r.ErrorType)
	assert.Nil(t, r.ErrorBot)
	assert.Equal(t, -50, r.DefenderScore)
	assert.Equal(t, 50, r.ChallengerScore)
	assert.Less(t, r.DefenderRatingChange, 0.0)
}

func TestInternalErrorIsVoid(t *testing.T) {
	s := newMockStore(game)
	h := newTestHandler(s)

	require.NoError(t, h.Handle(context.Background(), Message{ID: "g1", Error: match.InternalError(errors.New("bucket unavailable"))}))
	require.Len(t, s.Ladder, 1)
	r := s.Ladder[0]
	assert.Equal(t, "INTERNAL", *r.ErrorType)
	assert.Nil(t, r.ErrorBot)
	assert.Equal(t, 100, r.DefenderScore)
	assert.Equal(t, 100, r.ChallengerScore)
	assert.Zero(t, r.DefenderRatingChange)
	assert.Zero(t, r.ChallengerRatingChange)
}

func TestValidationOutcomes(t *testing.T) {
	s := newMockStore()
	h := newTestHandler(s)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, Message{ID: "42", Status: &match.Outcome{Kind: match.ValidationSucceeded}}))
	require.NoError(t, h.Handle(ctx, Message{
		ID:     "43",
		Status: &match.Outcome{Kind: match.ValidationFailed},
		Error:  match.SeatError(match.Timeout, match.Defender, errors.New("slow")),
	}))

	require.Len(t, s.Validation, 2)
	assert.Empty(t, s.Ladder)

	ok := s.Validation[0]
	assert.Equal(t, int64(42), ok.BotID)
	assert.True(t, ok.Passed)
	assert.Zero(t, ok.Result.DefenderRatingChange)
	assert.Zero(t, ok.Result.DefenderScore)

	failed := s.Validation[1]
	assert.False(t, failed.Passed)
	assert.Equal(t, "TIMEOUT", *failed.Result.ErrorType)
	assert.Zero(t, failed.Result.ChallengerRatingChange)
}

func TestHandleSurfacesFailures(t *testing.T) {
	ctx := context.Background()

	h := newTestHandler(newMockStore())
	assert.ErrorIs(t, h.Handle(ctx, Message{ID: "g1", Status: &match.Outcome{Kind: match.ScoreChanged}}), store.ErrNotFound)
	assert.ErrorIs(t, h.Handle(ctx, Message{ID: "g1"}), ErrEmptyMessage)
	assert.Error(t, h.Handle(ctx, Message{ID: "not-a-bot", Status: &match.Outcome{Kind: match.ValidationSucceeded}}))

	s := newMockStore(game)
	s.failWrites = errors.New("connection reset")
	h = newTestHandler(s)
	err := h.Handle(ctx, Message{ID: "g1", Status: &match.Outcome{Kind: match.ScoreChanged, Delta: 5}})
	assert.EqualError(t, err, "connection reset")
}
