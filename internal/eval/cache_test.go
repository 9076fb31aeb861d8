package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type countingProvider struct {
	mu           sync.Mutex
	analyzeCalls int
	bestCalls    int
	failAnalyze  bool
}

func (c *countingProvider) Analyze(_ context.Context, fen string, _ Config) (Evaluation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzeCalls++
	if c.failAnalyze {
		return Evaluation{}, errors.New("backend down")
	}
	return pseudoEvaluation(fen), nil
}

func (c *countingProvider) BestMove(_ context.Context, fen string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bestCalls++
	return "e2e4", nil
}

func TestCachedProviderServesRepeatsFromCache(t *testing.T) {
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, 16)
	ctx := context.Background()

	first, err := cp.Analyze(ctx, kpkFEN, Config{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := cp.Analyze(ctx, kpkFEN, Config{})
	if err != nil {
		t.Fatalf("Analyze cached: %v", err)
	}
	if first != second {
		t.Fatalf("cached result mismatch: %+v vs %+v", first, second)
	}
	if inner.analyzeCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", inner.analyzeCalls)
	}

	if _, err := cp.BestMove(ctx, kpkFEN); err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if _, err := cp.BestMove(ctx, kpkFEN); err != nil {
		t.Fatalf("BestMove cached: %v", err)
	}
	if inner.bestCalls != 1 {
		t.Fatalf("expected 1 best-move backend call, got %d", inner.bestCalls)
	}
	if cp.HitRate() <= 0 {
		t.Fatalf("hit rate should be positive after repeats")
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{failAnalyze: true}
	cp := NewCachedProvider(inner, 16)
	ctx := context.Background()

	if _, err := cp.Analyze(ctx, kpkFEN, Config{}); err == nil {
		t.Fatalf("expected backend error")
	}
	inner.failAnalyze = false
	if _, err := cp.Analyze(ctx, kpkFEN, Config{}); err != nil {
		t.Fatalf("recovered backend should answer: %v", err)
	}
	if inner.analyzeCalls != 2 {
		t.Fatalf("error responses must not be cached, calls=%d", inner.analyzeCalls)
	}
}

func TestCachedProviderEvictsWhenFull(t *testing.T) {
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, 8)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		fen := fmt.Sprintf("position-%d", i)
		if _, err := cp.Analyze(ctx, fen, Config{}); err != nil {
			t.Fatalf("Analyze %d: %v", i, err)
		}
	}

	cp.mu.RLock()
	size := len(cp.evals)
	cp.mu.RUnlock()
	if size > 8 {
		t.Fatalf("cache grew past its bound: %d", size)
	}
}

func TestCachedProviderClear(t *testing.T) {
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, 16)
	ctx := context.Background()

	if _, err := cp.Analyze(ctx, kpkFEN, Config{}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	cp.Clear()
	if _, err := cp.Analyze(ctx, kpkFEN, Config{}); err != nil {
		t.Fatalf("Analyze after clear: %v", err)
	}
	if inner.analyzeCalls != 2 {
		t.Fatalf("clear should force a backend refetch, calls=%d", inner.analyzeCalls)
	}
}
