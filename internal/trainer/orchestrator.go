package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
	"github.com/park285/Cheese-Endgame-Trainer/internal/rules"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 8 * time.Second

// EvaluationRequest pins one provider call to the position it was issued
// for. FEN and Epoch together decide staleness: both must still match the
// session when the result lands, otherwise the result is discarded.
type EvaluationRequest struct {
	FEN       string
	RequestID uint64
	Epoch     uint64
	IssuedAt  time.Time
}

type RequestOutcome string

const (
	OutcomeResolved RequestOutcome = "resolved"
	OutcomeStale    RequestOutcome = "stale"
	OutcomeFailed   RequestOutcome = "failed"
)

// RequestResult reports how one evaluation cycle ended. Reply is set when an
// opponent move was applied as part of the cycle.
type RequestResult struct {
	Request    EvaluationRequest
	Outcome    RequestOutcome
	Evaluation eval.Evaluation
	Annotation string
	Mistake    bool
	Reply      *ValidatedMove
	Err        error
}

// Orchestrator drives asynchronous evaluation for one session: it issues
// provider calls off the session lock, discards results that no longer match
// the live position, classifies user moves against the pre-move evaluation
// and plays the reference opponent's reply.
type Orchestrator struct {
	session  *Session
	provider eval.Provider
	cfg      eval.Config
	timeout  time.Duration
	logger   *zap.Logger

	autoReply bool
	seq       atomic.Uint64
	inflight  atomic.Int64
	closed    atomic.Bool
	wg        sync.WaitGroup
}

type OrchestratorOption func(*Orchestrator)

func WithEvalConfig(cfg eval.Config) OrchestratorOption {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func WithRequestTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAutoReply controls whether resolved evaluations trigger the reference
// opponent's reply when it is the opponent's turn. On by default.
func WithAutoReply(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.autoReply = enabled }
}

func NewOrchestrator(session *Session, provider eval.Provider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		session:   session,
		provider:  provider,
		timeout:   defaultRequestTimeout,
		logger:    zap.NewNop(),
		autoReply: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestEvaluation starts one evaluation cycle for the session's current
// position and returns immediately. The buffered channel delivers the final
// outcome; callers that only care about side effects may drop it and watch
// the event bus instead.
func (o *Orchestrator) RequestEvaluation() <-chan RequestResult {
	ch := make(chan RequestResult, 1)

	fen, epoch, over := o.session.evaluationTarget()
	req := EvaluationRequest{
		FEN:       fen,
		RequestID: o.seq.Add(1),
		Epoch:     epoch,
		IssuedAt:  time.Now(),
	}

	if o.closed.Load() {
		ch <- RequestResult{Request: req, Outcome: OutcomeFailed, Err: ErrOrchestratorClosed}
		close(ch)
		return ch
	}
	// Decided positions are never sent to a provider.
	if over {
		ch <- RequestResult{Request: req, Outcome: OutcomeStale}
		close(ch)
		return ch
	}

	o.wg.Add(1)
	o.inflight.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.inflight.Add(-1)
		result := o.run(req)
		ch <- result
		close(ch)
	}()
	return ch
}

// Wait blocks until every in-flight cycle, chained replies included, has
// finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) InFlight() int64 { return o.inflight.Load() }

// Close stops accepting new requests and drains the in-flight ones.
func (o *Orchestrator) Close() {
	o.closed.Store(true)
	o.wg.Wait()
}

func (o *Orchestrator) run(req EvaluationRequest) RequestResult {
	result := RequestResult{Request: req}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	evaluation, err := o.provider.Analyze(ctx, req.FEN, o.cfg)
	cancel()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
		o.logger.Warn("evaluation_failed",
			zap.Uint64("request_id", req.RequestID),
			zap.String("fen", req.FEN),
			zap.Error(err))
		return result
	}

	outcome := o.session.resolveEvaluation(req, evaluation)
	if !outcome.Accepted {
		result.Outcome = OutcomeStale
		result.Evaluation = evaluation
		o.logger.Debug("stale_evaluation_discarded",
			zap.Uint64("request_id", req.RequestID),
			zap.String("fen", req.FEN))
		return result
	}
	result.Outcome = OutcomeResolved
	result.Evaluation = evaluation

	var classification *Classification
	if outcome.Compare != nil && outcome.Compare.Before != nil {
		c := Classify(*outcome.Compare.Before, evaluation.Flip())
		classification = &c
		result.Annotation = c.Annotation
	}

	if !outcome.Duplicate {
		evCopy := evaluation
		o.session.Events().Publish(Event{
			Type:       EventEvaluationResolved,
			SessionID:  o.session.ID(),
			At:         time.Now(),
			FEN:        req.FEN,
			Evaluation: &evCopy,
			Annotation: result.Annotation,
		})
	}

	if classification != nil && classification.Mistake {
		rec := MistakeRecord{
			WDLBefore: classification.WDLBefore,
			WDLAfter:  classification.WDLAfter,
			BestMove:  o.recommendMove(outcome.Compare.FENBefore),
		}
		if o.session.openMistakeIf(req.FEN, req.Epoch, rec) {
			result.Mistake = true
		}
	}

	if o.autoReply && o.replyDue(req.FEN) {
		o.playReply(req, &result)
	}
	return result
}

func (o *Orchestrator) replyDue(fen string) bool {
	side, err := rules.SideToMove(fen)
	return err == nil && side != o.session.UserColor()
}

func (o *Orchestrator) playReply(req EvaluationRequest, result *RequestResult) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	best, err := o.provider.BestMove(ctx, req.FEN)
	cancel()
	if err != nil {
		if errors.Is(err, eval.ErrNoBestMove) {
			return
		}
		result.Err = fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
		o.logger.Warn("reply_lookup_failed",
			zap.Uint64("request_id", req.RequestID),
			zap.String("fen", req.FEN),
			zap.Error(err))
		return
	}

	applied, ok, err := o.session.applyReply(req.FEN, req.Epoch, best)
	if err != nil {
		result.Err = err
		o.logger.Error("reply_rejected",
			zap.Uint64("request_id", req.RequestID),
			zap.String("move", best),
			zap.Error(err))
		return
	}
	if !ok {
		o.logger.Debug("reply_discarded_not_current",
			zap.Uint64("request_id", req.RequestID),
			zap.String("fen", req.FEN))
		return
	}
	result.Reply = &applied

	// Keep the pre-move evaluation warm for the user's next move.
	if !o.session.Completed() {
		o.RequestEvaluation()
	}
}

// recommendMove fetches the provider's best move for the position before the
// user's mistake. Best effort; the dialog simply omits it on failure.
func (o *Orchestrator) recommendMove(fen string) string {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	move, err := o.provider.BestMove(ctx, fen)
	if err != nil {
		o.logger.Debug("best_move_unavailable", zap.String("fen", fen), zap.Error(err))
		return ""
	}
	return move
}
