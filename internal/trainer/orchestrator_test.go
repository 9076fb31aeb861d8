package trainer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
)

type blockingProvider struct {
	release chan struct{}
	result  eval.Evaluation
}

func newBlockingProvider(result eval.Evaluation) *blockingProvider {
	return &blockingProvider{release: make(chan struct{}), result: result}
}

func (p *blockingProvider) Analyze(ctx context.Context, _ string, _ eval.Config) (eval.Evaluation, error) {
	select {
	case <-p.release:
		return p.result, nil
	case <-ctx.Done():
		return eval.Evaluation{}, ctx.Err()
	}
}

func (p *blockingProvider) BestMove(context.Context, string) (string, error) {
	return "", eval.ErrNoBestMove
}

func (p *blockingProvider) Release() { close(p.release) }

type failingProvider struct{}

func (failingProvider) Analyze(context.Context, string, eval.Config) (eval.Evaluation, error) {
	return eval.Evaluation{}, errors.New("backend unavailable")
}

func (failingProvider) BestMove(context.Context, string) (string, error) {
	return "", errors.New("backend unavailable")
}

type slowReplyProvider struct {
	evaluation eval.Evaluation
	best       string
	release    chan struct{}
}

func (p *slowReplyProvider) Analyze(context.Context, string, eval.Config) (eval.Evaluation, error) {
	return p.evaluation, nil
}

func (p *slowReplyProvider) BestMove(ctx context.Context, _ string) (string, error) {
	select {
	case <-p.release:
		return p.best, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestResolvedEvaluationSticksToSession(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	stub.SetEvaluation(kpkStart, tbEval(eval.WDLWin, 11))
	o := NewOrchestrator(s, stub, WithAutoReply(false))

	res := <-o.RequestEvaluation()
	if res.Outcome != OutcomeResolved {
		t.Fatalf("expected resolved, got %+v", res)
	}
	if res.Request.RequestID != 1 || res.Request.FEN != kpkStart {
		t.Fatalf("request metadata wrong: %+v", res.Request)
	}
	got, fen := s.LastEvaluation()
	if got == nil || fen != kpkStart || got.Tablebase.WDL != eval.WDLWin {
		t.Fatalf("evaluation not attached: %+v fen=%q", got, fen)
	}
}

func TestStaleAfterResetIsDiscarded(t *testing.T) {
	s := newKPKSession(t)
	provider := newBlockingProvider(eval.Evaluation{Score: 99})
	o := NewOrchestrator(s, provider)
	collector := collectEvents(s)

	ch := o.RequestEvaluation()
	s.ResetToInitial()
	provider.Release()

	res := <-ch
	if res.Outcome != OutcomeStale {
		t.Fatalf("result after reset must be stale, got %+v", res)
	}
	if evaluation, _ := s.LastEvaluation(); evaluation != nil {
		t.Fatalf("stale result must never attach to the session")
	}
	if len(collector.ofType(EventEvaluationResolved)) != 0 {
		t.Fatalf("stale results emit no events")
	}
}

func TestStaleAfterUserMoveIsDiscarded(t *testing.T) {
	s := newKPKSession(t)
	provider := newBlockingProvider(eval.Evaluation{Score: 99})
	o := NewOrchestrator(s, provider)

	ch := o.RequestEvaluation()
	if _, err := s.ApplyUserMove("Kd6"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	provider.Release()

	res := <-ch
	if res.Outcome != OutcomeStale {
		t.Fatalf("result for a left position must be stale, got %+v", res)
	}
	if s.HistoryLen() != 1 {
		t.Fatalf("stale handling must not touch history")
	}
}

func TestProviderFailureLeavesSessionUsable(t *testing.T) {
	s := newKPKSession(t)
	o := NewOrchestrator(s, failingProvider{})

	res := <-o.RequestEvaluation()
	if res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrEvaluationFailed) {
		t.Fatalf("expected wrapped failure, got %+v", res)
	}
	if _, err := s.ApplyUserMove("Kd6"); err != nil {
		t.Fatalf("session must stay usable after provider failure: %v", err)
	}
	if evaluation, _ := s.LastEvaluation(); evaluation != nil {
		t.Fatalf("failed request must not attach an evaluation")
	}
}

func TestStalledProviderTimesOutAsFailed(t *testing.T) {
	s := newKPKSession(t)
	provider := newBlockingProvider(eval.Evaluation{})
	t.Cleanup(provider.Release)
	o := NewOrchestrator(s, provider, WithRequestTimeout(30*time.Millisecond))

	res := <-o.RequestEvaluation()
	if res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrEvaluationFailed) {
		t.Fatalf("a stalled provider must fail the cycle, got %+v", res)
	}
}

func TestEndToEndMoveEvaluationAndReply(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	o := NewOrchestrator(s, stub)

	mv, err := s.ApplyUserMove("Kd6")
	if err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	if s.HistoryLen() != 1 || mv.SAN != "Kd6" || s.CurrentIndex() != 0 {
		t.Fatalf("user move not committed: len=%d san=%q index=%d", s.HistoryLen(), mv.SAN, s.CurrentIndex())
	}

	res := <-o.RequestEvaluation()
	o.Wait()

	if res.Outcome != OutcomeResolved {
		t.Fatalf("evaluation should resolve: %+v", res)
	}
	if res.Reply == nil || res.Reply.SAN != "Kd8" {
		t.Fatalf("reference reply missing: %+v", res.Reply)
	}
	if s.HistoryLen() != 2 || s.CurrentIndex() != 1 {
		t.Fatalf("reply not committed: len=%d index=%d", s.HistoryLen(), s.CurrentIndex())
	}
	reply, _ := s.MoveAt(1)
	if reply.SAN != "Kd8" || reply.Color != "black" {
		t.Fatalf("unexpected reply entry: %+v", reply)
	}
}

func TestMistakePopulatesRecordAndSurvivesReply(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	stub.SetEvaluation(kpkStart, tbEval(eval.WDLWin, 11))
	stub.SetNextMove(kpkStart, "e6d6")
	stub.SetEvaluation(kpkAfterKd5, tbEval(eval.WDLDraw, 0))
	o := NewOrchestrator(s, stub)
	collector := collectEvents(s)

	// Seed the pre-move evaluation, then throw the win away with Kd5.
	<-o.RequestEvaluation()
	if _, err := s.ApplyUserMove("Kd5"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}

	res := <-o.RequestEvaluation()
	o.Wait()

	if !res.Mistake {
		t.Fatalf("expected a mistake result: %+v", res)
	}
	rec := s.Mistake()
	if !rec.Open || rec.WDLBefore != eval.WDLWin || rec.WDLAfter != eval.WDLDraw {
		t.Fatalf("mistake record wrong: %+v", rec)
	}
	if rec.BestMove != "e6d6" {
		t.Fatalf("record should carry the recommended move for the pre-move position: %+v", rec)
	}
	if len(collector.ofType(EventMistakeDetected)) != 1 {
		t.Fatalf("expected one mistake event")
	}

	// The reference reply landed, and the dialog is still open.
	if s.HistoryLen() != 2 {
		t.Fatalf("reply should have been applied: len=%d", s.HistoryLen())
	}
	if !s.Mistake().Open {
		t.Fatalf("opponent replies must not close the dialog")
	}
}

func TestHeldWinRaisesNoMistake(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	stub.SetEvaluation(kpkStart, tbEval(eval.WDLWin, 11))
	// After Kd6 the defender is lost; from the side to move that is a loss.
	stub.SetEvaluation(kpkAfterKd6, tbEval(eval.WDLLoss, 10))
	o := NewOrchestrator(s, stub, WithAutoReply(false))

	<-o.RequestEvaluation()
	if _, err := s.ApplyUserMove("Kd6"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	res := <-o.RequestEvaluation()

	if res.Mistake || s.Mistake().Open {
		t.Fatalf("keeping the win must not raise a mistake: %+v", res)
	}
}

func TestDuplicateEvaluationProcessedOnce(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	stub.SetEvaluation(kpkStart, tbEval(eval.WDLWin, 11))
	stub.SetNextMove(kpkStart, "e6d6")
	stub.SetEvaluation(kpkAfterKd5, tbEval(eval.WDLDraw, 0))
	o := NewOrchestrator(s, stub, WithAutoReply(false))
	collector := collectEvents(s)

	<-o.RequestEvaluation()
	if _, err := s.ApplyUserMove("Kd5"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	<-o.RequestEvaluation()
	if !s.DismissMistake() {
		t.Fatalf("first pass should have opened the dialog")
	}

	res := <-o.RequestEvaluation()
	if res.Outcome != OutcomeResolved {
		t.Fatalf("duplicate is still a resolution: %+v", res)
	}
	if res.Mistake || s.Mistake().Open {
		t.Fatalf("the same evaluation must not reopen the dialog")
	}
	if got := len(collector.ofType(EventEvaluationResolved)); got != 2 {
		t.Fatalf("duplicates emit no extra events: got %d", got)
	}
}

func TestAnnotationForEngineOnlyDrop(t *testing.T) {
	s := newKPKSession(t)
	stub := eval.NewStubProvider()
	stub.SetEvaluation(kpkStart, eval.Evaluation{Score: 150})
	stub.SetEvaluation(kpkAfterKd6, eval.Evaluation{Score: 30})
	o := NewOrchestrator(s, stub, WithAutoReply(false))

	<-o.RequestEvaluation()
	if _, err := s.ApplyUserMove("Kd6"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	res := <-o.RequestEvaluation()

	if res.Mistake {
		t.Fatalf("engine-only drops are not mistakes: %+v", res)
	}
	if res.Annotation != "?!" {
		t.Fatalf("expected a dubious annotation, got %q", res.Annotation)
	}
}

func TestReplyDiscardedWhenUserNavigatesAway(t *testing.T) {
	s := newKPKSession(t)
	provider := &slowReplyProvider{
		evaluation: eval.Evaluation{Score: 10},
		best:       "e8d8",
		release:    make(chan struct{}),
	}
	o := NewOrchestrator(s, provider)

	resolved := make(chan struct{}, 1)
	s.Events().Subscribe(func(ev Event) {
		if ev.Type == EventEvaluationResolved {
			select {
			case resolved <- struct{}{}:
			default:
			}
		}
	})

	if _, err := s.ApplyUserMove("Kd6"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	ch := o.RequestEvaluation()
	<-resolved

	if !s.Undo() {
		t.Fatalf("undo should succeed")
	}
	close(provider.release)

	res := <-ch
	o.Wait()
	if res.Reply != nil {
		t.Fatalf("reply for a left position must be discarded: %+v", res.Reply)
	}
	if s.HistoryLen() != 1 || s.CurrentIndex() != -1 {
		t.Fatalf("discarded reply must not append: len=%d index=%d", s.HistoryLen(), s.CurrentIndex())
	}
}

func TestClosedOrchestratorRejectsRequests(t *testing.T) {
	s := newKPKSession(t)
	o := NewOrchestrator(s, eval.NewStubProvider(), WithAutoReply(false))
	o.Close()

	res := <-o.RequestEvaluation()
	if res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrOrchestratorClosed) {
		t.Fatalf("closed orchestrator must refuse work: %+v", res)
	}
}

func TestRequestIDsAreMonotonic(t *testing.T) {
	s := newKPKSession(t)
	o := NewOrchestrator(s, eval.NewStubProvider(), WithAutoReply(false))

	first := <-o.RequestEvaluation()
	second := <-o.RequestEvaluation()
	if second.Request.RequestID <= first.Request.RequestID {
		t.Fatalf("request ids must increase: %d then %d", first.Request.RequestID, second.Request.RequestID)
	}
}
