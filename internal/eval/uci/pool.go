package uci

import (
	"context"
	"fmt"
	"sync"
)

// Pool keeps warm engine sessions grouped by their option set, so a request
// with MultiPV 1 never has to reconfigure a session prepared for MultiPV 3.
type Pool struct {
	binaryPath  string
	perKeyCap   int
	mu          sync.Mutex
	buckets     map[string]*bucket
	closed      bool
	spawnCtx    context.Context
	cancelSpawn context.CancelFunc
}

type bucket struct {
	idle chan *Session
}

func NewPool(binaryPath string, perKeyCap int) (*Pool, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("engine binary path is empty")
	}
	if perKeyCap <= 0 {
		perKeyCap = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		binaryPath:  binaryPath,
		perKeyCap:   perKeyCap,
		buckets:     make(map[string]*bucket),
		spawnCtx:    ctx,
		cancelSpawn: cancel,
	}, nil
}

func optionsKey(opt Options) string {
	return fmt.Sprintf("t%d-h%d-m%d", opt.Threads, opt.HashMB, opt.MultiPV)
}

// Acquire returns a ready session configured with opt, creating one when the
// bucket has no idle session. The caller must hand it back via Release or
// discard it via Discard.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	b, err := p.bucketFor(opt)
	if err != nil {
		return nil, err
	}

	select {
	case s := <-b.idle:
		if err := s.NewGame(ctx); err != nil {
			s.Close()
			return p.spawn(ctx, opt)
		}
		return s, nil
	default:
	}

	return p.spawn(ctx, opt)
}

// Release parks the session for reuse; if the bucket is already at capacity
// the session is closed instead.
func (p *Pool) Release(opt Options, s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.Close()
		return
	}
	b, ok := p.buckets[optionsKey(opt)]
	p.mu.Unlock()
	if !ok {
		s.Close()
		return
	}

	select {
	case b.idle <- s:
	default:
		s.Close()
	}
}

// Discard closes a session known to be in a bad state.
func (p *Pool) Discard(s *Session) {
	if s != nil {
		s.Close()
	}
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	buckets := p.buckets
	p.buckets = make(map[string]*bucket)
	p.mu.Unlock()

	p.cancelSpawn()
	for _, b := range buckets {
		for {
			select {
			case s := <-b.idle:
				s.Close()
			default:
				goto nextBucket
			}
		}
	nextBucket:
	}
}

func (p *Pool) bucketFor(opt Options) (*bucket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("engine pool is closed")
	}
	key := optionsKey(opt)
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{idle: make(chan *Session, p.perKeyCap)}
		p.buckets[key] = b
	}
	return b, nil
}

func (p *Pool) spawn(ctx context.Context, opt Options) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("engine pool is closed")
	}
	spawnCtx := p.spawnCtx
	p.mu.Unlock()

	s, err := NewSession(spawnCtx, p.binaryPath, opt)
	if err != nil {
		return nil, fmt.Errorf("spawn engine session: %w", err)
	}
	if err := s.NewGame(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("prepare engine session: %w", err)
	}
	return s, nil
}
