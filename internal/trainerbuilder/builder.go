package trainerbuilder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Endgame-Trainer/internal/config"
	"github.com/park285/Cheese-Endgame-Trainer/internal/drill"
	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
	"github.com/park285/Cheese-Endgame-Trainer/internal/msgcat"
	trainersvc "github.com/park285/Cheese-Endgame-Trainer/internal/service/trainer"
	"github.com/park285/Cheese-Endgame-Trainer/internal/sessionstore"
)

// Deps bundles the assembled trainer stack plus the handles Close releases.
// Engine is nil unless the engine provider was selected; DB is nil when
// history runs on the in-memory repository.
type Deps struct {
	Service  *trainersvc.Service
	Messages *msgcat.Catalog
	Drills   *drill.Catalog
	Provider eval.Provider
	Engine   *eval.EngineProvider
	Repo     trainersvc.Repository
	Redis    *redis.Client
	DB       *sql.DB
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, engine, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.EvalCache {
		provider = eval.NewCachedProvider(provider, cfg.EvalCacheSize)
	}

	// Redis is required: live sessions survive restarts only through it.
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	snaps := sessionstore.New(rdb, time.Duration(cfg.SessionTTLSec)*time.Second)

	// Postgres is optional; without it runs and profiles do not survive the
	// process.
	var db *sql.DB
	var repo trainersvc.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo = trainersvc.NewRepository(db)
	} else {
		logger.Warn("no DATABASE_URL, training history is kept in memory")
		repo = trainersvc.NewMemoryRepository()
	}

	drills, err := drill.Load(cfg.DrillDir)
	if err != nil {
		return nil, fmt.Errorf("load drills: %w", err)
	}
	messages, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	svcCfg := trainersvc.Config{
		HistoryLimit: cfg.HistoryLimit,
		EvalTimeout:  time.Duration(cfg.EvalTimeoutSec) * time.Second,
		Eval: eval.Config{
			Depth:       cfg.EvalDepth,
			TimeLimitMs: cfg.EvalTimeMs,
			MultiPV:     cfg.EvalMultiPV,
		},
	}
	service, err := trainersvc.NewService(provider, drills, messages, snaps, repo, svcCfg, logger)
	if err != nil {
		return nil, err
	}

	return &Deps{
		Service:  service,
		Messages: messages,
		Drills:   drills,
		Provider: provider,
		Engine:   engine,
		Repo:     repo,
		Redis:    rdb,
		DB:       db,
	}, nil
}

func buildProvider(cfg *config.AppConfig, logger *zap.Logger) (eval.Provider, *eval.EngineProvider, error) {
	switch cfg.EvalProvider {
	case config.ProviderTablebase:
		client := eval.NewTablebaseClient(cfg.TablebaseURL,
			eval.WithTimeout(time.Duration(cfg.EvalTimeoutSec)*time.Second),
			eval.WithLogger(logger),
		)
		return client, nil, nil
	case config.ProviderEngine:
		engine, err := eval.NewEngineProvider(cfg.StockfishPath, cfg.EnginePoolSize, eval.Config{
			Depth:       cfg.EvalDepth,
			TimeLimitMs: cfg.EvalTimeMs,
			MultiPV:     cfg.EvalMultiPV,
		}, eval.WithEngineLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("init engine provider: %w", err)
		}
		return engine, engine, nil
	case config.ProviderStub:
		return eval.NewStubProvider(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown eval provider %q", cfg.EvalProvider)
	}
}

// Close releases in dependency order: the service first so it can snapshot
// live sessions, then the engine pool, then the stores.
func (d *Deps) Close(ctx context.Context) {
	if d.Service != nil {
		d.Service.Close(ctx)
	}
	if d.Engine != nil {
		_ = d.Engine.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}
