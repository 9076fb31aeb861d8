package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/domain"
	"github.com/park285/Cheese-Endgame-Trainer/internal/drill"
	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
	"github.com/park285/Cheese-Endgame-Trainer/internal/msgcat"
	"github.com/park285/Cheese-Endgame-Trainer/internal/rules"
	"github.com/park285/Cheese-Endgame-Trainer/internal/sessionstore"
	coretrainer "github.com/park285/Cheese-Endgame-Trainer/internal/trainer"
	"github.com/park285/Cheese-Endgame-Trainer/internal/util"
	"github.com/park285/Cheese-Endgame-Trainer/pkg/trainerdto"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound  = errors.New("training session not found")
	ErrSessionFinished  = errors.New("training session already finished")
	ErrInvalidMove      = errors.New("invalid training move")
	ErrUnknownDrill     = errors.New("unknown drill")
	ErrProfileNotFound  = errors.New("trainee profile not found")
	ErrUndoNotAvailable = errors.New("no moves available to undo")
	ErrRedoNotAvailable = errors.New("no moves available to redo")
	ErrInvalidJumpIndex = errors.New("jump index out of range")
	ErrHintUnavailable  = errors.New("no hint available for position")
	ErrEvalUnavailable  = errors.New("evaluation provider unavailable")
	ErrEvalTimeout      = errors.New("evaluation provider timeout")
)

const (
	defaultTraineeRating = 1200
	kFactor              = 24
	maxHistoryLimit      = 50
	defaultEvalTimeout   = 8 * time.Second
	persistTimeout       = 5 * time.Second
)

type Config struct {
	HistoryLimit int
	EvalTimeout  time.Duration
	Eval         eval.Config
}

// Service is the application face of the trainer: it owns drill selection,
// the live session registry, snapshot persistence and run/profile records.
// The move-by-move semantics live in the core session and orchestrator.
type Service struct {
	provider eval.Provider
	catalog  *drill.Catalog
	messages *msgcat.Catalog
	snaps    *sessionstore.Store
	repo     Repository
	registry *registry
	cfg      Config
	logger   *zap.Logger

	sinkMu sync.RWMutex
	sink   func(traineeKey string, ev coretrainer.Event)
}

// TraineeKey anonymizes the caller before anything is stored, logged or
// routed. Transports use the same key to address event frames.
func TraineeKey(meta trainerdto.RequestMeta) string {
	return util.HashSubject(strings.ToLower(strings.TrimSpace(meta.Trainee)))
}

func NewService(provider eval.Provider, catalog *drill.Catalog, messages *msgcat.Catalog, snaps *sessionstore.Store, repo Repository, cfg Config, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("evaluation provider is required")
	}
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("drill catalog is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	if snaps == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("training repository is required")
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 10
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = defaultEvalTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		provider: provider,
		catalog:  catalog,
		messages: messages,
		snaps:    snaps,
		repo:     repo,
		registry: newRegistry(),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (s *Service) StartDrill(ctx context.Context, meta trainerdto.RequestMeta, drillID string) (*trainerdto.StartDrillResponse, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	hash := TraineeKey(meta)

	if live := s.registry.forTrainee(hash); live != nil {
		return &trainerdto.StartDrillResponse{State: s.buildState(live, ""), Resumed: true}, nil
	}
	if live, err := s.restoreActive(ctx, hash); err != nil {
		return nil, err
	} else if live != nil {
		return &trainerdto.StartDrillResponse{State: s.buildState(live, ""), Resumed: true}, nil
	}

	var chosen drill.Drill
	token := strings.TrimSpace(drillID)
	if token == "" || strings.EqualFold(token, "random") {
		chosen = s.catalog.Random()
	} else {
		var ok bool
		chosen, ok = s.catalog.Get(token)
		if !ok {
			return nil, ErrUnknownDrill
		}
	}

	sess, err := coretrainer.NewSession(chosen.FEN,
		coretrainer.WithUserColor(chosen.PlayerColor),
		coretrainer.WithTargetResult(chosen.TargetResult),
	)
	if err != nil {
		return nil, fmt.Errorf("start drill %s: %w", chosen.ID, err)
	}

	live := &liveSession{
		UUID:        sess.ID(),
		TraineeHash: hash,
		Drill:       chosen,
		Session:     sess,
		Orch:        s.newOrchestrator(sess),
		StartedAt:   time.Now(),
	}
	s.watch(live)
	if existing := s.registry.add(live); existing != live {
		live.close()
		return &trainerdto.StartDrillResponse{State: s.buildState(existing, ""), Resumed: true}, nil
	}

	if err := s.saveSnapshot(ctx, live); err != nil {
		s.registry.remove(live.UUID)
		live.close()
		return nil, err
	}

	live.Orch.RequestEvaluation()

	s.logger.Info("training_session_started",
		zap.String("session_uuid", live.UUID),
		zap.String("drill_id", chosen.ID),
		zap.String("trainee", util.ShortHash(hash)),
		zap.String("user_color", sess.UserColor()),
		zap.Int("drill_rating", chosen.Rating),
	)

	msg := s.messages.RenderOr("trainer.start", map[string]any{
		"Name":   chosen.Name,
		"Rating": chosen.Rating,
		"Target": chosen.TargetResult,
	}, "")
	return &trainerdto.StartDrillResponse{State: s.buildState(live, msg)}, nil
}

func (s *Service) Play(ctx context.Context, meta trainerdto.RequestMeta, moveInput string) (*trainerdto.MoveSummary, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	moveText := strings.TrimSpace(moveInput)
	if moveText == "" {
		return nil, ErrInvalidMove
	}

	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}

	mv, err := live.Session.ApplyUserMove(moveText)
	if err != nil {
		switch {
		case errors.Is(err, coretrainer.ErrIllegalMove):
			return nil, ErrInvalidMove
		case errors.Is(err, coretrainer.ErrSessionTerminal):
			return nil, ErrSessionFinished
		default:
			return nil, err
		}
	}

	summary := &trainerdto.MoveSummary{
		PlayerSAN: mv.SAN,
		PlayerUCI: mv.UCI,
	}

	if !live.Session.Completed() {
		started := time.Now()
		select {
		case result := <-live.Orch.RequestEvaluation():
			live.noteEvalWait(time.Since(started))
			switch result.Outcome {
			case coretrainer.OutcomeResolved:
				summary.Annotation = result.Annotation
				if result.Reply != nil {
					summary.ReplySAN = result.Reply.SAN
					summary.ReplyUCI = result.Reply.UCI
				}
				if result.Err != nil {
					s.logger.Warn("reply_unavailable",
						zap.Error(result.Err),
						zap.String("session_uuid", live.UUID))
				}
			case coretrainer.OutcomeStale:
				// Navigation raced the cycle; the state below reflects whatever won.
			case coretrainer.OutcomeFailed:
				s.logger.Warn("evaluation_cycle_failed",
					zap.Error(result.Err),
					zap.String("session_uuid", live.UUID),
					zap.String("fen", result.Request.FEN))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var message string
	if live.Session.Completed() {
		summary.Finished = true
		runID, profile, delta := live.runResult()
		summary.RunID = runID
		summary.RatingDelta = delta
		if profile != nil {
			summary.Profile = profileDTO(profile)
		}
		message = s.completionMessage(live)
		s.cleanup(ctx, live)
	} else if err := s.saveSnapshot(ctx, live); err != nil {
		s.logger.Warn("session_snapshot_failed",
			zap.Error(err),
			zap.String("session_uuid", live.UUID))
	}

	state := s.buildState(live, message)
	if summary.Finished {
		state.RunID = summary.RunID
		state.Profile = summary.Profile
		state.RatingDelta = summary.RatingDelta
	}
	summary.State = state
	return summary, nil
}

func (s *Service) Status(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}

	// Re-warm the cycle when a reply never landed, but only at the tip of
	// history: off-tip it would commit a reply and wipe the redo tail.
	view := live.Session.View()
	atTip := view.CurrentIndex == len(view.Moves)-1
	if !view.Completed && atTip && view.SideToMove != view.UserColor && live.Orch.InFlight() == 0 {
		live.Orch.RequestEvaluation()
	}

	if err := s.snaps.Touch(ctx, live.UUID); err != nil {
		s.logger.Warn("session_touch_failed", zap.Error(err), zap.String("session_uuid", live.UUID))
	}
	return s.buildState(live, ""), nil
}

func (s *Service) Undo(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	if !live.Session.Undo() {
		return nil, ErrUndoNotAvailable
	}
	s.afterNavigation(ctx, live)
	return s.buildState(live, ""), nil
}

func (s *Service) Redo(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	if !live.Session.Redo() {
		return nil, ErrRedoNotAvailable
	}
	s.afterNavigation(ctx, live)
	return s.buildState(live, ""), nil
}

func (s *Service) JumpTo(ctx context.Context, meta trainerdto.RequestMeta, index int) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	if !live.Session.JumpTo(index) {
		return nil, ErrInvalidJumpIndex
	}
	s.afterNavigation(ctx, live)
	return s.buildState(live, ""), nil
}

func (s *Service) Reset(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	live.Session.ResetToInitial()
	live.setCounters(0, 0)
	s.afterNavigation(ctx, live)
	return s.buildState(live, s.messages.RenderOr("trainer.reset", nil, "")), nil
}

func (s *Service) DismissMistake(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	live.Session.DismissMistake()
	return s.buildState(live, ""), nil
}

func (s *Service) Hint(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.HintSuggestion, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	view := live.Session.View()
	if view.Completed {
		return nil, ErrSessionFinished
	}

	started := time.Now()
	hintCtx, cancel := context.WithTimeout(ctx, s.cfg.EvalTimeout)
	defer cancel()
	best, err := s.provider.BestMove(hintCtx, view.CurrentFEN)
	if err != nil {
		return nil, mapProviderError(err)
	}

	san := ""
	if applied, applyErr := rules.Apply(view.CurrentFEN, best); applyErr == nil {
		san = applied.SAN
	}
	return &trainerdto.HintSuggestion{
		MoveUCI:  best,
		MoveSAN:  san,
		Duration: time.Since(started),
	}, nil
}

func (s *Service) Resign(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.SessionState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	live, err := s.liveFor(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}

	s.finishRun(live, true)

	state := s.buildState(live, s.messages.RenderOr("trainer.resign", nil, ""))
	state.Completed = true
	state.Result = resignResult(live.Session.UserColor())
	state.ResultMethod = "resignation"
	state.Succeeded = false
	runID, profile, delta := live.runResult()
	state.RunID = runID
	state.RatingDelta = delta
	if profile != nil {
		state.Profile = profileDTO(profile)
	}

	s.cleanup(ctx, live)

	s.logger.Info("training_session_resigned",
		zap.String("session_uuid", live.UUID),
		zap.String("drill_id", live.Drill.ID),
		zap.Int64("run_id", runID))
	return state, nil
}

func (s *Service) RecentRuns(ctx context.Context, meta trainerdto.RequestMeta, limit int) ([]*trainerdto.TrainingRun, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	runs, err := s.repo.GetRecentRuns(ctx, TraineeKey(meta), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*trainerdto.TrainingRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, runDTO(run))
	}
	return out, nil
}

func (s *Service) Profile(ctx context.Context, meta trainerdto.RequestMeta) (*trainerdto.TraineeProfile, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	profile, err := s.repo.GetProfile(ctx, TraineeKey(meta))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profileDTO(profile), nil
}

func (s *Service) Drills(ctx context.Context, meta trainerdto.RequestMeta) ([]*trainerdto.DrillInfo, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	entries := s.catalog.List()
	out := make([]*trainerdto.DrillInfo, 0, len(entries))
	for _, d := range entries {
		out = append(out, &trainerdto.DrillInfo{
			ID:           d.ID,
			Name:         d.Name,
			Rating:       d.Rating,
			PlayerColor:  d.PlayerColor,
			TargetResult: d.TargetResult,
			Themes:       append([]string(nil), d.Themes...),
		})
	}
	return out, nil
}

// Close drains the registry, snapshotting unfinished sessions so a restart
// can pick them back up.
func (s *Service) Close(ctx context.Context) {
	for _, live := range s.registry.drain() {
		if live.unsubscribe != nil {
			live.unsubscribe()
		}
		live.Orch.Close()
		if live.Session.Completed() {
			continue
		}
		if err := s.snaps.Save(ctx, live.snapshot()); err != nil {
			s.logger.Warn("session_snapshot_failed",
				zap.Error(err),
				zap.String("session_uuid", live.UUID))
		}
	}
}

func (s *Service) ensureReady() error {
	switch {
	case s.provider == nil:
		return fmt.Errorf("evaluation provider not configured")
	case s.catalog == nil:
		return fmt.Errorf("drill catalog not configured")
	case s.messages == nil:
		return fmt.Errorf("message catalog not configured")
	case s.snaps == nil:
		return fmt.Errorf("session store not configured")
	case s.repo == nil:
		return fmt.Errorf("training repository not configured")
	default:
		return nil
	}
}

func (s *Service) newOrchestrator(sess *coretrainer.Session) *coretrainer.Orchestrator {
	return coretrainer.NewOrchestrator(sess, s.provider,
		coretrainer.WithEvalConfig(s.cfg.Eval),
		coretrainer.WithRequestTimeout(s.cfg.EvalTimeout),
		coretrainer.WithOrchestratorLogger(s.logger),
	)
}

// SetEventSink registers one callback that receives every event from every
// live session, keyed by the owning trainee. Pass nil to detach. Sinks run
// synchronously with session mutations and must not call back into the
// service.
func (s *Service) SetEventSink(sink func(traineeKey string, ev coretrainer.Event)) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

func (s *Service) notifySink(traineeKey string, ev coretrainer.Event) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink != nil {
		sink(traineeKey, ev)
	}
}

// watch subscribes the service's bookkeeping to the session's event bus.
// Handlers run synchronously on whichever goroutine committed the change,
// never under the session lock.
func (s *Service) watch(live *liveSession) {
	live.unsubscribe = live.Session.Events().Subscribe(func(ev coretrainer.Event) {
		switch ev.Type {
		case coretrainer.EventMistakeDetected:
			live.addMistake()
		case coretrainer.EventEvaluationResolved:
			if ev.Annotation != "" {
				live.addInaccuracy()
			}
		case coretrainer.EventSessionCompleted:
			s.finishRun(live, false)
		}
		s.notifySink(live.TraineeHash, ev)
	})
}

func (s *Service) liveFor(ctx context.Context, hash string) (*liveSession, error) {
	if live := s.registry.forTrainee(hash); live != nil {
		return live, nil
	}
	live, err := s.restoreActive(ctx, hash)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

// restoreActive rebuilds a live session from its redis snapshot after a
// restart. Returns nil without error when there is nothing to restore.
func (s *Service) restoreActive(ctx context.Context, hash string) (*liveSession, error) {
	sessionUUID, err := s.snaps.ActiveSession(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup active session: %w", err)
	}
	if sessionUUID == "" {
		return nil, nil
	}
	snap, err := s.snaps.Load(ctx, sessionUUID)
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	if snap == nil {
		if err := s.snaps.ClearActive(ctx, hash); err != nil {
			s.logger.Warn("active_session_clear_failed", zap.Error(err))
		}
		return nil, nil
	}

	live, err := s.rebuild(snap)
	if err != nil {
		s.logger.Warn("session_restore_failed",
			zap.Error(err),
			zap.String("session_uuid", sessionUUID),
			zap.String("drill_id", snap.DrillID))
		s.discardSnapshot(ctx, sessionUUID, hash)
		return nil, nil
	}
	s.watch(live)

	// A snapshot can be terminal when the process died between completion
	// and cleanup. Persist the run (the unique session constraint makes
	// this idempotent) and report no session.
	if live.Session.Completed() {
		s.finishRun(live, false)
		live.close()
		s.discardSnapshot(ctx, sessionUUID, hash)
		return nil, nil
	}

	if existing := s.registry.add(live); existing != live {
		live.close()
		return existing, nil
	}
	live.Orch.RequestEvaluation()

	s.logger.Info("training_session_restored",
		zap.String("session_uuid", live.UUID),
		zap.String("drill_id", live.Drill.ID),
		zap.Int("moves", len(snap.Moves)))
	return live, nil
}

func (s *Service) rebuild(snap *sessionstore.Snapshot) (*liveSession, error) {
	chosen, ok := s.catalog.Get(snap.DrillID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDrill, snap.DrillID)
	}
	sess, err := coretrainer.NewSession(snap.InitialFEN,
		coretrainer.WithSessionID(snap.SessionUUID),
		coretrainer.WithUserColor(snap.UserColor),
		coretrainer.WithTargetResult(snap.TargetResult),
	)
	if err != nil {
		return nil, err
	}
	for _, mv := range snap.Moves {
		if _, err := sess.ApplyUserMove(mv); err != nil {
			return nil, fmt.Errorf("replay move %s: %w", mv, err)
		}
	}
	if snap.CurrentIndex < len(snap.Moves)-1 {
		sess.JumpTo(snap.CurrentIndex)
	}

	startedAt := snap.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	live := &liveSession{
		UUID:        sess.ID(),
		TraineeHash: snap.TraineeHash,
		Drill:       chosen,
		Session:     sess,
		Orch:        s.newOrchestrator(sess),
		StartedAt:   startedAt,
	}
	live.setCounters(snap.Mistakes, snap.Inaccuracies)
	return live, nil
}

func (s *Service) saveSnapshot(ctx context.Context, live *liveSession) error {
	if err := s.snaps.Save(ctx, live.snapshot()); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	if err := s.snaps.SetActive(ctx, live.TraineeHash, live.UUID); err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

func (s *Service) afterNavigation(ctx context.Context, live *liveSession) {
	if err := s.saveSnapshot(ctx, live); err != nil {
		s.logger.Warn("session_snapshot_failed",
			zap.Error(err),
			zap.String("session_uuid", live.UUID))
	}
	// Warm the evaluation for the landed position, but only when the
	// trainee is on move: with the opponent on move the orchestrator would
	// answer with a reply and truncate the redo tail.
	view := live.Session.View()
	if !view.Completed && view.SideToMove == view.UserColor {
		live.Orch.RequestEvaluation()
	}
}

func (s *Service) cleanup(ctx context.Context, live *liveSession) {
	if s.registry.remove(live.UUID) == nil {
		return
	}
	if live.unsubscribe != nil {
		live.unsubscribe()
	}
	go live.Orch.Close()
	s.discardSnapshot(ctx, live.UUID, live.TraineeHash)
}

func (s *Service) discardSnapshot(ctx context.Context, sessionUUID, traineeHash string) {
	if err := s.snaps.Delete(ctx, sessionUUID); err != nil {
		s.logger.Warn("session_snapshot_delete_failed",
			zap.Error(err),
			zap.String("session_uuid", sessionUUID))
	}
	if err := s.snaps.ClearActive(ctx, traineeHash); err != nil {
		s.logger.Warn("active_session_clear_failed", zap.Error(err))
	}
}

// finishRun persists the training run and updates the trainee profile. Only
// the first call per session takes effect; redo-into-terminal or a resign
// racing a completion cannot produce a second row.
func (s *Service) finishRun(live *liveSession, abandoned bool) {
	if !live.beginPersist() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	view := live.Session.View()
	now := time.Now()
	mistakes, inaccuracies := live.counters()

	result := view.Status.Result
	method := view.Status.Reason
	succeeded := view.Succeeded
	if abandoned {
		result = resignResult(view.UserColor)
		method = "resignation"
		succeeded = false
	}

	played := view.Moves
	if view.CurrentIndex+1 < len(played) {
		played = played[:view.CurrentIndex+1]
	}
	movesUCI := make([]string, 0, len(played))
	movesSAN := make([]string, 0, len(played))
	for _, mv := range played {
		movesUCI = append(movesUCI, mv.UCI)
		movesSAN = append(movesSAN, mv.SAN)
	}

	run := &domain.TrainingRun{
		SessionUUID:  live.UUID,
		TraineeHash:  live.TraineeHash,
		DrillID:      live.Drill.ID,
		InitialFEN:   view.InitialFEN,
		UserColor:    view.UserColor,
		Result:       result,
		ResultMethod: method,
		TargetResult: view.TargetResult,
		Succeeded:    succeeded,
		MovesUCI:     movesUCI,
		MovesSAN:     movesSAN,
		Mistakes:     mistakes,
		Inaccuracies: inaccuracies,
		StartedAt:    live.StartedAt,
		EndedAt:      now,
		Duration:     now.Sub(live.StartedAt),
		EvalLatency:  live.lastEvalWait(),
	}

	runID, err := s.repo.InsertRun(ctx, run)
	if err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			existing, fetchErr := s.repo.GetRunBySession(ctx, live.UUID, live.TraineeHash)
			if fetchErr == nil && existing != nil {
				live.storeRunResult(existing.ID, nil, 0)
			}
			return
		}
		s.logger.Error("training_run_persist_failed",
			zap.Error(err),
			zap.String("session_uuid", live.UUID),
			zap.String("drill_id", live.Drill.ID))
		return
	}

	profile, err := s.repo.GetProfile(ctx, live.TraineeHash)
	if err != nil {
		s.logger.Warn("trainee_profile_fetch_failed",
			zap.Error(err),
			zap.String("trainee", util.ShortHash(live.TraineeHash)))
		live.storeRunResult(runID, nil, 0)
		return
	}
	profile, delta := applyRunResult(profile, live.TraineeHash, live.Drill, succeeded, abandoned, now)
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		s.logger.Warn("trainee_profile_upsert_failed",
			zap.Error(err),
			zap.String("trainee", util.ShortHash(live.TraineeHash)))
		live.storeRunResult(runID, nil, 0)
		return
	}
	live.storeRunResult(runID, profile, delta)

	s.logger.Info("training_run_persisted",
		zap.Int64("run_id", runID),
		zap.String("session_uuid", live.UUID),
		zap.String("drill_id", live.Drill.ID),
		zap.String("result", result),
		zap.Bool("succeeded", succeeded),
		zap.Int("mistakes", mistakes),
		zap.Int("rating_delta", delta))
}

func applyRunResult(profile *domain.TraineeProfile, traineeHash string, d drill.Drill, succeeded, abandoned bool, endedAt time.Time) (*domain.TraineeProfile, int) {
	if profile == nil {
		profile = &domain.TraineeProfile{
			TraineeHash: traineeHash,
			Rating:      defaultTraineeRating,
			CreatedAt:   endedAt,
		}
	}

	prevRating := profile.Rating

	profile.RunsPlayed++
	profile.LastDrillID = d.ID
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	resultType := "failed"
	score := 0.0
	switch {
	case abandoned:
		profile.Abandoned++
	case succeeded:
		profile.Solved++
		resultType = "solved"
		score = 1.0
	default:
		profile.Failed++
	}

	if profile.StreakType == resultType {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = resultType
	}

	drillRating := d.Rating
	if drillRating <= 0 {
		drillRating = defaultTraineeRating
	}
	expected := 1 / (1 + math.Pow(10, float64(drillRating-profile.Rating)/400))
	newRating := float64(profile.Rating) + kFactor*(score-expected)
	profile.Rating = int(math.Round(newRating))

	return profile, profile.Rating - prevRating
}

func resignResult(userColor string) string {
	if userColor == "white" {
		return "0-1"
	}
	return "1-0"
}

func mapProviderError(err error) error {
	if err == nil {
		return ErrEvalUnavailable
	}
	if errors.Is(err, eval.ErrNoBestMove) {
		return ErrHintUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || timeoutMessage(err) {
		return ErrEvalTimeout
	}
	return ErrEvalUnavailable
}

func timeoutMessage(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func (s *Service) completionMessage(live *liveSession) string {
	key := "trainer.completed.failure"
	if live.Session.Succeeded() {
		key = "trainer.completed.success"
	}
	view := live.Session.View()
	return s.messages.RenderOr(key, map[string]any{
		"Name":   live.Drill.Name,
		"Result": view.Status.Result,
		"Target": view.TargetResult,
	}, "")
}

func (s *Service) buildState(live *liveSession, message string) *trainerdto.SessionState {
	view := live.Session.View()
	mistakes, inaccuracies := live.counters()

	movesSAN := make([]string, 0, len(view.Moves))
	movesUCI := make([]string, 0, len(view.Moves))
	for _, mv := range view.Moves {
		movesSAN = append(movesSAN, mv.SAN)
		movesUCI = append(movesUCI, mv.UCI)
	}

	state := &trainerdto.SessionState{
		SessionUUID:  view.ID,
		DrillID:      live.Drill.ID,
		DrillName:    live.Drill.Name,
		InitialFEN:   view.InitialFEN,
		FEN:          view.CurrentFEN,
		SideToMove:   view.SideToMove,
		UserColor:    view.UserColor,
		TargetResult: view.TargetResult,
		MovesSAN:     movesSAN,
		MovesUCI:     movesUCI,
		CurrentIndex: view.CurrentIndex,
		MoveCount:    len(view.Moves),
		Mistakes:     mistakes,
		Inaccuracies: inaccuracies,
		Completed:    view.Completed,
		Succeeded:    view.Succeeded,
		Message:      message,
	}
	if view.Completed {
		state.Result = view.Status.Result
		state.ResultMethod = view.Status.Reason
	}
	if view.Evaluation != nil {
		state.Evaluation = evaluationDTO(view.Evaluation, view.EvaluationFEN, view.UserColor)
	}
	if view.Mistake.Open {
		state.Mistake = s.mistakeDTO(view.Mistake)
	}
	return state
}

// evaluationDTO normalizes the stored side-to-move evaluation to the
// trainee's point of view before presentation.
func evaluationDTO(e *eval.Evaluation, fen, userColor string) *trainerdto.EvaluationInfo {
	normalized := *e
	if side, err := rules.SideToMove(fen); err == nil && side != userColor {
		normalized = normalized.Flip()
	}
	info := &trainerdto.EvaluationInfo{
		FEN:       fen,
		ScoreCP:   normalized.Score,
		Mate:      normalized.Mate,
		Tablebase: normalized.Tablebase.Available,
	}
	if normalized.Tablebase.Available {
		info.WDL = int(normalized.Tablebase.WDL)
		info.DTZ = normalized.Tablebase.DTZ
		info.Category = normalized.Tablebase.Category
		info.Precise = normalized.Tablebase.Precise
	}
	return info
}

func (s *Service) mistakeDTO(rec coretrainer.MistakeRecord) *trainerdto.MistakeInfo {
	info := &trainerdto.MistakeInfo{
		Open:          rec.Open,
		WDLBefore:     int(rec.WDLBefore),
		WDLAfter:      int(rec.WDLAfter),
		VerdictBefore: rec.WDLBefore.Category(),
		VerdictAfter:  rec.WDLAfter.Category(),
		BestMove:      rec.BestMove,
	}
	info.Message = s.messages.RenderOr("trainer.mistake", map[string]any{
		"Before": s.verdictLabel(rec.WDLBefore),
		"After":  s.verdictLabel(rec.WDLAfter),
		"Best":   rec.BestMove,
	}, "")
	return info
}

func (s *Service) verdictLabel(w eval.WDL) string {
	key := "verdict.draw"
	switch {
	case w > 0:
		key = "verdict.win"
	case w < 0:
		key = "verdict.loss"
	}
	return s.messages.RenderOr(key, nil, key)
}

func profileDTO(p *domain.TraineeProfile) *trainerdto.TraineeProfile {
	return &trainerdto.TraineeProfile{
		Trainee:      util.ShortHash(p.TraineeHash),
		Rating:       p.Rating,
		RunsPlayed:   p.RunsPlayed,
		Solved:       p.Solved,
		Failed:       p.Failed,
		Abandoned:    p.Abandoned,
		Streak:       p.Streak,
		StreakType:   p.StreakType,
		LastDrillID:  p.LastDrillID,
		LastPlayedAt: p.LastPlayedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func runDTO(run *domain.TrainingRun) *trainerdto.TrainingRun {
	return &trainerdto.TrainingRun{
		ID:           run.ID,
		SessionUUID:  run.SessionUUID,
		DrillID:      run.DrillID,
		InitialFEN:   run.InitialFEN,
		UserColor:    run.UserColor,
		Result:       run.Result,
		ResultMethod: run.ResultMethod,
		TargetResult: run.TargetResult,
		Succeeded:    run.Succeeded,
		MovesUCI:     append([]string(nil), run.MovesUCI...),
		MovesSAN:     append([]string(nil), run.MovesSAN...),
		Mistakes:     run.Mistakes,
		Inaccuracies: run.Inaccuracies,
		StartedAt:    run.StartedAt,
		EndedAt:      run.EndedAt,
		Duration:     run.Duration,
		EvalLatency:  run.EvalLatency,
	}
}
