package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pokerarena/server/bots"
	"pokerarena/server/lease"
	"pokerarena/server/match"
	"pokerarena/server/metrics"
	"pokerarena/server/queue"
	"pokerarena/server/rating"
	"pokerarena/server/results"
	"pokerarena/server/sandbox"
	"pokerarena/server/store"
	"pokerarena/server/worker"
)

const artifactTimeout = time.Minute

func init() {
	rootCmd.AddCommand(gameplayCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().Int64Var(&enqueueDefender, "defender", 0, "defending bot id")
	enqueueCmd.Flags().Int64Var(&enqueueChallenger, "challenger", 0, "challenging bot id")
	enqueueCmd.Flags().Int64Var(&enqueueValidate, "validate", 0, "queue a validation game for this bot id instead")
	enqueueCmd.Flags().IntVar(&enqueueRounds, "rounds", 0, "rounds to play (0 uses MATCH_ROUNDS)")
}

var gameplayCmd = &cobra.Command{
	Use:   "gameplay",
	Short: "Play match requests from the bus and publish their outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateGameplay(); err != nil {
			return err
		}
		ctx := cmd.Context()

		bus, err := queue.New(ctx, cfg.GCPProject, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		bus.MaxOutstanding = cfg.Concurrency

		var fetcher bots.Fetcher = bots.NewHTTPFetcher(cfg.ArtifactBaseURL, artifactTimeout)
		if cfg.ArtifactDir != "" {
			fetcher = bots.DirFetcher{Root: cfg.ArtifactDir}
		}

		deps := map[string]Pinger{}
		w := &worker.Gameplay{
			Acquirer: &bots.Acquirer{
				Fetcher: fetcher,
				Bucket:  cfg.BotBucket,
				Limits:  sandbox.Limits{CPUSeconds: cfg.CPUSeconds, MemoryMB: cfg.MemoryMB},
				Log:     logger,
			},
			Bus:          bus,
			OutcomeTopic: cfg.OutcomeTopic,
			Match:        match.Config{Rounds: cfg.Rounds, Timeout: cfg.ActionTimeout, StartStack: cfg.StartStack},
			ScratchDir:   cfg.ScratchDir,
			KeepScratch:  cfg.KeepScratch,
			Log:          logger.Named("gameplay"),
			Metrics:      metrics.NewService(),
		}

		if cfg.RedisURL != "" {
			rdb, err := lease.Open(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer rdb.Close()
			w.Lease = lease.New(rdb, leaseOwner(), lease.DefaultTTL)
			deps["redis"] = PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		} else {
			logger.Warn("REDIS_URL not set, redelivered requests may be played twice")
		}

		serveAdmin(ctx, cfg.AdminAddr, Router(prometheus.DefaultGatherer, deps))
		return w.Run(ctx, bus, cfg.RequestSubscription)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Persist match outcomes and update ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateResults(); err != nil {
			return err
		}
		ctx := cmd.Context()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		bus, err := queue.New(ctx, cfg.GCPProject, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		bus.MaxOutstanding = cfg.Concurrency

		h := results.NewHandler(db, rating.NewElo(cfg.EloK), cfg.StartStack, logger.Named("results"), metrics.NewService())
		w := &worker.Results{Handler: h, Log: logger.Named("results")}

		serveAdmin(ctx, cfg.AdminAddr, Router(prometheus.DefaultGatherer, map[string]Pinger{"postgres": db}))
		return w.Run(ctx, bus, cfg.OutcomeSubscription)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		logger.Info("schema applied")
		return nil
	},
}

var (
	enqueueDefender   int64
	enqueueChallenger int64
	enqueueValidate   int64
	enqueueRounds     int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a ladder game or a validation game",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GCPProject == "" {
			return errors.New("GCP_PROJECT is required")
		}
		ctx := cmd.Context()

		req := worker.Request{Rounds: enqueueRounds}
		switch {
		case enqueueValidate > 0:
			req.ID = strconv.FormatInt(enqueueValidate, 10)
			req.Defender = req.ID
			req.Kind = worker.KindValidation
		case enqueueDefender > 0 && enqueueChallenger > 0:
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			g, err := db.CreateGame(ctx, uuid.NewString(), enqueueDefender, enqueueChallenger)
			if err != nil {
				return err
			}
			req.ID = g.ID
			req.Defender = strconv.FormatInt(g.Defender, 10)
			req.Challenger = strconv.FormatInt(g.Challenger, 10)
			req.Kind = worker.KindLadder
		default:
			return errors.New("pass --validate, or both --defender and --challenger")
		}

		bus, err := queue.New(ctx, cfg.GCPProject, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.Publish(ctx, cfg.RequestTopic, req); err != nil {
			return err
		}
		logger.Info("match queued", zap.String("id", req.ID), zap.String("kind", string(req.Kind)))
		fmt.Fprintln(cmd.OutOrStdout(), req.ID)
		return nil
	},
}

func openDB(ctx context.Context) (*store.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return host + "/" + uuid.NewString()
}
