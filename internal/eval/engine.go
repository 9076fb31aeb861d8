package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval/uci"
	"go.uber.org/zap"
)

const (
	defaultEngineThreads = 1
	defaultEngineHashMB  = 64
)

// EngineProvider answers evaluation lookups with a local UCI engine. Searches
// are bounded per call; the provider never drives a whole game by itself.
type EngineProvider struct {
	pool     *uci.Pool
	threads  int
	hashMB   int
	defaults Config
	logger   *zap.Logger
}

type EngineOption func(*EngineProvider)

func WithEngineThreads(threads int) EngineOption {
	return func(p *EngineProvider) {
		if threads > 0 {
			p.threads = threads
		}
	}
}

func WithEngineHashMB(hashMB int) EngineOption {
	return func(p *EngineProvider) {
		if hashMB > 0 {
			p.hashMB = hashMB
		}
	}
}

func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(p *EngineProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewEngineProvider(binaryPath string, poolSize int, defaults Config, opts ...EngineOption) (*EngineProvider, error) {
	pool, err := uci.NewPool(binaryPath, poolSize)
	if err != nil {
		return nil, err
	}
	p := &EngineProvider{
		pool:     pool,
		threads:  defaultEngineThreads,
		hashMB:   defaultEngineHashMB,
		defaults: defaults,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *EngineProvider) Analyze(ctx context.Context, fen string, cfg Config) (Evaluation, error) {
	resp, err := p.search(ctx, fen, p.mergeConfig(cfg))
	if err != nil {
		return Evaluation{}, err
	}
	if len(resp.Candidates) == 0 {
		return Evaluation{}, fmt.Errorf("engine returned no candidates for %q", truncate(fen, 60))
	}
	best := resp.Candidates[0]
	return Evaluation{Score: best.EvalCP, Mate: best.Mate}, nil
}

func (p *EngineProvider) BestMove(ctx context.Context, fen string) (string, error) {
	cfg := p.mergeConfig(Config{})
	cfg.MultiPV = 1
	resp, err := p.search(ctx, fen, cfg)
	if err != nil {
		return "", err
	}
	move := strings.TrimSpace(resp.BestMove)
	if move == "" || move == "(none)" {
		return "", ErrNoBestMove
	}
	return move, nil
}

func (p *EngineProvider) Close() error {
	p.pool.Close()
	return nil
}

func (p *EngineProvider) search(ctx context.Context, fen string, cfg Config) (uci.SearchResponse, error) {
	opt := uci.Options{
		Threads: p.threads,
		HashMB:  p.hashMB,
		MultiPV: cfg.MultiPV,
	}

	session, err := p.pool.Acquire(ctx, opt)
	if err != nil {
		return uci.SearchResponse{}, fmt.Errorf("acquire engine: %w", err)
	}

	resp, err := session.Search(ctx, uci.SearchRequest{
		FEN: fen,
		Limits: uci.Limits{
			Depth:          cfg.Depth,
			MoveTimeMillis: cfg.TimeLimitMs,
		},
	})
	if err != nil {
		p.pool.Discard(session)
		p.logger.Warn("engine search failed",
			zap.String("fen", truncate(fen, 60)),
			zap.Error(err))
		return uci.SearchResponse{}, err
	}

	p.pool.Release(opt, session)
	return resp, nil
}

func (p *EngineProvider) mergeConfig(cfg Config) Config {
	merged := cfg
	if merged.Depth <= 0 {
		merged.Depth = p.defaults.Depth
	}
	if merged.TimeLimitMs <= 0 {
		merged.TimeLimitMs = p.defaults.TimeLimitMs
	}
	if merged.MultiPV <= 0 {
		merged.MultiPV = p.defaults.MultiPV
	}
	if merged.MultiPV <= 0 {
		merged.MultiPV = 1
	}
	return merged
}
