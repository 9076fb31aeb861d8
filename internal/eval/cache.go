package eval

import (
	"context"
	"sync"
)

// CachedProvider wraps another provider with a FEN-keyed evaluation cache.
// Evaluations are immutable per position, so entries never expire; the cache
// sheds half its entries when full.
type CachedProvider struct {
	inner   Provider
	mu      sync.RWMutex
	evals   map[string]Evaluation
	moves   map[string]string
	maxSize int
	hits    uint64
	misses  uint64
}

func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &CachedProvider{
		inner:   inner,
		evals:   make(map[string]Evaluation, cacheSize),
		moves:   make(map[string]string, cacheSize),
		maxSize: cacheSize,
	}
}

func (cp *CachedProvider) Analyze(ctx context.Context, fen string, cfg Config) (Evaluation, error) {
	cp.mu.RLock()
	cached, ok := cp.evals[fen]
	cp.mu.RUnlock()
	if ok {
		cp.mu.Lock()
		cp.hits++
		cp.mu.Unlock()
		return cached, nil
	}

	result, err := cp.inner.Analyze(ctx, fen, cfg)
	if err != nil {
		return Evaluation{}, err
	}

	cp.mu.Lock()
	cp.misses++
	if len(cp.evals) >= cp.maxSize {
		i := 0
		for k := range cp.evals {
			if i >= cp.maxSize/2 {
				break
			}
			delete(cp.evals, k)
			i++
		}
	}
	cp.evals[fen] = result
	cp.mu.Unlock()
	return result, nil
}

func (cp *CachedProvider) BestMove(ctx context.Context, fen string) (string, error) {
	cp.mu.RLock()
	cached, ok := cp.moves[fen]
	cp.mu.RUnlock()
	if ok {
		cp.mu.Lock()
		cp.hits++
		cp.mu.Unlock()
		return cached, nil
	}

	move, err := cp.inner.BestMove(ctx, fen)
	if err != nil {
		return "", err
	}

	cp.mu.Lock()
	cp.misses++
	if len(cp.moves) >= cp.maxSize {
		i := 0
		for k := range cp.moves {
			if i >= cp.maxSize/2 {
				break
			}
			delete(cp.moves, k)
			i++
		}
	}
	cp.moves[fen] = move
	cp.mu.Unlock()
	return move, nil
}

// HitRate reports the cache hit percentage across both lookups.
func (cp *CachedProvider) HitRate() float64 {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	total := cp.hits + cp.misses
	if total == 0 {
		return 0
	}
	return float64(cp.hits) / float64(total) * 100
}

func (cp *CachedProvider) Clear() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.evals = make(map[string]Evaluation, cp.maxSize)
	cp.moves = make(map[string]string, cp.maxSize)
	cp.hits = 0
	cp.misses = 0
}
