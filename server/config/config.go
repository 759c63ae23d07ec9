// Package config loads worker settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pokerarena/server/match"
	"pokerarena/server/rating"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	GCPProject  string

	BotBucket       string
	ArtifactBaseURL string
	ArtifactDir     string

	RequestTopic        string
	RequestSubscription string
	OutcomeTopic        string
	OutcomeSubscription string

	Rounds        int
	ActionTimeout time.Duration
	StartStack    int
	EloK          float64
	CPUSeconds    int
	MemoryMB      int
	Concurrency   int

	ScratchDir  string
	KeepScratch bool
	AdminAddr   string
	AutoMigrate bool
}

// LoadDotenv reads .env files when present. Missing files are not an error.
func LoadDotenv(files ...string) {
	_ = godotenv.Load(files...)
}

func Load() (*Config, error) {
	cfg := &Config{
		RequestTopic:        "match-requests",
		RequestSubscription: "match-requests",
		OutcomeTopic:        "match-outcomes",
		OutcomeSubscription: "match-outcomes",
		Rounds:              match.DefaultRounds,
		ActionTimeout:       match.DefaultTimeout,
		StartStack:          match.DefaultStartStack,
		EloK:                rating.DefaultK,
		Concurrency:         4,
		ScratchDir:          os.TempDir(),
		AdminAddr:           ":8080",
	}

	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.RedisURL = env("REDIS_URL")
	cfg.GCPProject = env("GCP_PROJECT")
	cfg.BotBucket = env("COMPILED_BOT_S3_BUCKET")
	cfg.ArtifactBaseURL = env("ARTIFACT_BASE_URL")
	cfg.ArtifactDir = env("ARTIFACT_DIR")

	if v := env("MATCH_REQUEST_TOPIC"); v != "" {
		cfg.RequestTopic = v
	}
	if v := env("MATCH_REQUEST_SUBSCRIPTION"); v != "" {
		cfg.RequestSubscription = v
	}
	if v := env("MATCH_OUTCOME_TOPIC"); v != "" {
		cfg.OutcomeTopic = v
	}
	if v := env("MATCH_OUTCOME_SUBSCRIPTION"); v != "" {
		cfg.OutcomeSubscription = v
	}
	if v := env("SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if v := env("ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}

	var errs []error
	positiveInt(&errs, "MATCH_ROUNDS", &cfg.Rounds)
	positiveInt(&errs, "START_STACK", &cfg.StartStack)
	positiveInt(&errs, "WORKER_CONCURRENCY", &cfg.Concurrency)
	nonNegativeInt(&errs, "BOT_CPU_SECONDS", &cfg.CPUSeconds)
	nonNegativeInt(&errs, "BOT_MEMORY_MB", &cfg.MemoryMB)

	timeoutMS := int(cfg.ActionTimeout / time.Millisecond)
	positiveInt(&errs, "MATCH_TIMEOUT_MS", &timeoutMS)
	cfg.ActionTimeout = time.Duration(timeoutMS) * time.Millisecond

	if v := env("ELO_K"); v != "" {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil || k <= 0 {
			errs = append(errs, fmt.Errorf("ELO_K must be a positive number, got %q", v))
		} else {
			cfg.EloK = k
		}
	}
	boolean(&errs, "KEEP_SCRATCH", &cfg.KeepScratch)
	boolean(&errs, "AUTO_MIGRATE", &cfg.AutoMigrate)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateGameplay checks what the gameplay worker needs.
func (c *Config) ValidateGameplay() error {
	var errs []error
	if c.GCPProject == "" {
		errs = append(errs, errors.New("GCP_PROJECT is required"))
	}
	if c.BotBucket == "" {
		errs = append(errs, errors.New("COMPILED_BOT_S3_BUCKET is required"))
	}
	if c.ArtifactBaseURL == "" && c.ArtifactDir == "" {
		errs = append(errs, errors.New("one of ARTIFACT_BASE_URL or ARTIFACT_DIR is required"))
	}
	return errors.Join(errs...)
}

// ValidateResults checks what the results worker needs.
func (c *Config) ValidateResults() error {
	var errs []error
	if c.GCPProject == "" {
		errs = append(errs, errors.New("GCP_PROJECT is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	return errors.Join(errs...)
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func positiveInt(errs *[]error, key string, dst *int) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
		return
	}
	*dst = n
}

func nonNegativeInt(errs *[]error, key string, dst *int) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, v))
		return
	}
	*dst = n
}

func boolean(errs *[]error, key string, dst *bool) {
	v := env(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return
	}
	*dst = b
}
