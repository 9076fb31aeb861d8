package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	EvalProvider  string
	TablebaseURL  string
	StockfishPath string

	EvalDepth      int
	EvalTimeMs     int
	EvalMultiPV    int
	EvalTimeoutSec int
	EvalCache      bool
	EvalCacheSize  int

	EnginePoolSize int

	SessionTTLSec int
	HistoryLimit  int

	DrillDir   string
	MessageDir string
}

const (
	ProviderTablebase = "tablebase"
	ProviderEngine    = "engine"
	ProviderStub      = "stub"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8980",
		EvalProvider:   ProviderTablebase,
		TablebaseURL:   "https://tablebase.lichess.ovh/standard",
		EvalDepth:      14,
		EvalTimeMs:     1500,
		EvalMultiPV:    1,
		EvalTimeoutSec: 8,
		EvalCache:      true,
		EvalCacheSize:  4096,
		EnginePoolSize: 2,
		SessionTTLSec:  1800,
		HistoryLimit:   10,
	}

	if v := strings.TrimSpace(os.Getenv("TRAINER_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("TRAINER_EVAL_PROVIDER"))); v != "" {
		cfg.EvalProvider = v
	}
	if v := strings.TrimSpace(os.Getenv("TABLEBASE_URL")); v != "" {
		cfg.TablebaseURL = v
	}
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))

	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_TIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalTimeMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_MULTIPV")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalMultiPV = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_TIMEOUT")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_CACHE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EvalCache = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_EVAL_CACHE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalCacheSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_ENGINE_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EnginePoolSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_SESSION_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRAINER_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}
	cfg.DrillDir = strings.TrimSpace(os.Getenv("TRAINER_DRILL_DIR"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("TRAINER_MSG_DIR"))

	switch cfg.EvalProvider {
	case ProviderTablebase, ProviderEngine, ProviderStub:
	default:
		return nil, fmt.Errorf("TRAINER_EVAL_PROVIDER must be one of tablebase/engine/stub, got %q", cfg.EvalProvider)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.EvalProvider == ProviderEngine && cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required when TRAINER_EVAL_PROVIDER=engine")
	}

	return cfg, nil
}
