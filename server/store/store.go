// Package store persists ladder state in Postgres: bot ratings, team
// scores, scheduled games and their immutable results.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

var ErrNotFound = errors.New("not found")

type BuildStatus int

const (
	BuildUnqueued BuildStatus = iota
	BuildQueued
	BuildSucceeded
	BuildFailed
	TestGameSucceeded
	TestGameFailed
)

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// Game is a scheduled ladder game with the ratings both bots held when it
// was created.
type Game struct {
	ID               string
	Defender         int64
	Challenger       int64
	DefenderRating   float64
	ChallengerRating float64
}

// Result is one game_results row.
type Result struct {
	ID                     string
	DefenderRatingChange   float64
	ChallengerRatingChange float64
	DefenderScore          int
	ChallengerScore        int
	ErrorType              *string
	ErrorBot               *int
}

// CreateGame schedules a game between two bots at their current ratings.
func (db *DB) CreateGame(ctx context.Context, id string, defender, challenger int64) (Game, error) {
	g := Game{ID: id, Defender: defender, Challenger: challenger}
	err := db.QueryRow(ctx, `
		INSERT INTO games(id, defender, challenger, defender_rating, challenger_rating)
		SELECT $1, d.id, c.id, d.rating, c.rating
		  FROM bots d, bots c
		 WHERE d.id = $2 AND c.id = $3
		RETURNING defender_rating, challenger_rating
	`, id, defender, challenger).Scan(&g.DefenderRating, &g.ChallengerRating)
	if errors.Is(err, pgx.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: bot %w", id, ErrNotFound)
	}
	return g, err
}

// GameRatings loads a scheduled game.
func (db *DB) GameRatings(ctx context.Context, id string) (Game, error) {
	g := Game{ID: id}
	err := db.QueryRow(ctx, `
		SELECT defender, challenger, defender_rating, challenger_rating
		  FROM games WHERE id = $1
	`, id).Scan(&g.Defender, &g.Challenger, &g.DefenderRating, &g.ChallengerRating)
	if errors.Is(err, pgx.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g, err
}

// RecordLadderResult applies both rating changes to the bots and their teams
// and inserts the result, atomically.
func (db *DB) RecordLadderResult(ctx context.Context, g Game, r Result) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	for _, u := range []struct {
		bot   int64
		delta float64
	}{{g.Defender, r.DefenderRatingChange}, {g.Challenger, r.ChallengerRatingChange}} {
		var team int64
		err := tx.QueryRow(ctx, `UPDATE bots SET rating = rating + $2 WHERE id = $1 RETURNING team`, u.bot, u.delta).Scan(&team)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("bot %d: %w", u.bot, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update bot %d: %w", u.bot, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE teams SET score = score + $2 WHERE id = $1`, team, u.delta); err != nil {
			return fmt.Errorf("update team %d: %w", team, err)
		}
	}
	if err := insertResult(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordValidationResult stores the outcome of a bot's test game against
// itself. A passing bot becomes its team's active bot when the team has none.
func (db *DB) RecordValidationResult(ctx context.Context, botID int64, passed bool, r Result) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	status := TestGameFailed
	if passed {
		status = TestGameSucceeded
	}
	var team int64
	err = tx.QueryRow(ctx, `UPDATE bots SET build_status = $2 WHERE id = $1 RETURNING team`, botID, int(status)).Scan(&team)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bot %d: %w", botID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update bot %d: %w", botID, err)
	}
	if passed {
		if _, err := tx.Exec(ctx, `UPDATE teams SET active_bot = $2 WHERE id = $1 AND active_bot IS NULL`, team, botID); err != nil {
			return fmt.Errorf("set active bot: %w", err)
		}
	}
	if err := insertResult(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertResult(ctx context.Context, tx pgx.Tx, r Result) error {
	var errType, errBot any
	if r.ErrorType != nil {
		errType = *r.ErrorType
	}
	if r.ErrorBot != nil {
		errBot = *r.ErrorBot
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO game_results(
			id, defender_rating_change, challenger_rating_change,
			defender_score, challenger_score, error_type, error_bot
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, r.ID, r.DefenderRatingChange, r.ChallengerRatingChange,
		r.DefenderScore, r.ChallengerScore, errType, errBot)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.ID, err)
	}
	return nil
}

// GetResult reads back a stored result.
func (db *DB) GetResult(ctx context.Context, id string) (Result, error) {
	r := Result{ID: id}
	err := db.QueryRow(ctx, `
		SELECT defender_rating_change, challenger_rating_change,
		       defender_score, challenger_score, error_type, error_bot
		  FROM game_results WHERE id = $1
	`, id).Scan(&r.DefenderRatingChange, &r.ChallengerRatingChange,
		&r.DefenderScore, &r.ChallengerScore, &r.ErrorType, &r.ErrorBot)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return r, err
}

// BotRating returns a bot's current rating and its team's score.
func (db *DB) BotRating(ctx context.Context, botID int64) (rating, teamScore float64, err error) {
	err = db.QueryRow(ctx, `
		SELECT b.rating, t.score
		  FROM bots b JOIN teams t ON t.id = b.team
		 WHERE b.id = $1
	`, botID).Scan(&rating, &teamScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("bot %d: %w", botID, ErrNotFound)
	}
	return rating, teamScore, err
}
