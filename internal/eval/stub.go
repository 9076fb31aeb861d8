package eval

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-Endgame-Trainer/internal/rules"
)

// StubProvider is the deterministic substitute used by test harnesses and the
// stub provider mode. Registered positions answer instantly with the canned
// response; everything else gets a stable pseudo-evaluation derived from the
// FEN, so repeated calls always agree. It satisfies Provider exactly like the
// real backends, which keeps callers unaware of which one is wired.
type StubProvider struct {
	mu        sync.RWMutex
	evals     map[string]Evaluation
	nextMoves map[string]string
	custom    []customResponse
}

type customResponse struct {
	prefix   string
	eval     Evaluation
	bestMove string
}

func NewStubProvider() *StubProvider {
	return &StubProvider{
		evals:     make(map[string]Evaluation),
		nextMoves: make(map[string]string),
	}
}

// SetEvaluation registers the exact answer for one FEN.
func (p *StubProvider) SetEvaluation(fen string, evaluation Evaluation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals[normalizeFEN(fen)] = evaluation
}

// SetNextMove registers the reply move (UCI) recommended for one FEN.
func (p *StubProvider) SetNextMove(fen string, uci string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMoves[normalizeFEN(fen)] = strings.ToLower(strings.TrimSpace(uci))
}

// AddCustomResponse registers a prefix-matched fallback: any FEN starting
// with fenPrefix answers with the given evaluation and best move. Exact
// registrations win over custom responses.
func (p *StubProvider) AddCustomResponse(fenPrefix string, evaluation Evaluation, bestMove string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custom = append(p.custom, customResponse{
		prefix:   strings.TrimSpace(fenPrefix),
		eval:     evaluation,
		bestMove: strings.ToLower(strings.TrimSpace(bestMove)),
	})
}

func (p *StubProvider) ClearCustomResponses() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custom = nil
}

func (p *StubProvider) Analyze(ctx context.Context, fen string, _ Config) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	key := normalizeFEN(fen)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if evaluation, ok := p.evals[key]; ok {
		return evaluation, nil
	}
	for _, cr := range p.custom {
		if cr.prefix != "" && strings.HasPrefix(key, cr.prefix) {
			return cr.eval, nil
		}
	}
	return pseudoEvaluation(key), nil
}

func (p *StubProvider) BestMove(ctx context.Context, fen string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := normalizeFEN(fen)

	p.mu.RLock()
	if move, ok := p.nextMoves[key]; ok {
		p.mu.RUnlock()
		return move, nil
	}
	for _, cr := range p.custom {
		if cr.prefix != "" && cr.bestMove != "" && strings.HasPrefix(key, cr.prefix) {
			p.mu.RUnlock()
			return cr.bestMove, nil
		}
	}
	p.mu.RUnlock()

	// Unregistered positions reply with the first legal move in UCI order,
	// which is stable for a given FEN.
	moves, err := rules.LegalMoves(key)
	if err != nil {
		return "", err
	}
	if len(moves) == 0 {
		return "", ErrNoBestMove
	}
	sort.Strings(moves)
	return moves[0], nil
}

func normalizeFEN(fen string) string {
	return strings.TrimSpace(fen)
}

// pseudoEvaluation hashes the FEN into a small stable score: never a mate,
// never tablebase data, bounded to a drawish band.
func pseudoEvaluation(fen string) Evaluation {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fen))
	score := int(h.Sum64()%181) - 90
	return Evaluation{Score: score}
}
