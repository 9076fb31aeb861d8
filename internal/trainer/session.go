package trainer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
	"github.com/park285/Cheese-Endgame-Trainer/internal/rules"
)

// Session is the aggregate root of one training run: it owns the authoritative
// position, the navigable move history, the last accepted evaluation and the
// mistake dialog payload. All mutations go through its mutex; provider calls
// never run under it.
type Session struct {
	mu sync.Mutex

	id           string
	initialFEN   string
	userColor    string
	targetResult string

	history *History
	status  rules.Status

	lastEval    *eval.Evaluation
	lastEvalFEN string
	lastEvalKey string
	compare     *pendingCompare
	mistake     MistakeRecord

	// epoch changes whenever navigation can land on a previously seen FEN
	// (undo, redo, jump, reset), so an in-flight evaluation for the same FEN
	// from before the navigation can still be told apart and discarded.
	epoch uint64

	bus       *EventBus
	createdAt time.Time
	updatedAt time.Time
}

// pendingCompare carries what the classifier needs once the evaluation for
// the position after a user move arrives. Before is nil when no evaluation
// for the pre-move position had been accepted yet.
type pendingCompare struct {
	FENBefore string
	FENAfter  string
	Before    *eval.Evaluation
	MoveSAN   string
	MoveUCI   string
}

// SessionView is a consistent read-only snapshot for presentation layers.
type SessionView struct {
	ID            string
	InitialFEN    string
	CurrentFEN    string
	CurrentIndex  int
	SideToMove    string
	UserColor     string
	TargetResult  string
	Moves         []ValidatedMove
	Status        rules.Status
	Evaluation    *eval.Evaluation
	EvaluationFEN string
	Mistake       MistakeRecord
	Epoch         uint64
	Completed     bool
	Succeeded     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithUserColor fixes which side the trainee plays. Defaults to the side to
// move in the initial position.
func WithUserColor(color string) SessionOption {
	return func(s *Session) {
		if color == "white" || color == "black" {
			s.userColor = color
		}
	}
}

// WithTargetResult sets the drill's expected outcome ("1-0", "0-1" or
// "1/2-1/2"); reaching it marks the run as succeeded.
func WithTargetResult(result string) SessionOption {
	return func(s *Session) { s.targetResult = result }
}

func WithEventBus(bus *EventBus) SessionOption {
	return func(s *Session) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func NewSession(initialFEN string, opts ...SessionOption) (*Session, error) {
	if err := rules.ValidateFEN(initialFEN); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	status, err := rules.Terminal(initialFEN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	side, err := rules.SideToMove(initialFEN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}

	now := time.Now()
	s := &Session{
		id:         uuid.NewString(),
		initialFEN: initialFEN,
		userColor:  side,
		history:    NewHistory(initialFEN),
		status:     status,
		bus:        NewEventBus(),
		createdAt:  now,
		updatedAt:  now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) InitialFEN() string   { return s.initialFEN }
func (s *Session) UserColor() string    { return s.userColor }
func (s *Session) TargetResult() string { return s.targetResult }
func (s *Session) Events() *EventBus    { return s.bus }

func (s *Session) CurrentFEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CurrentFEN()
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CurrentIndex()
}

func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

func (s *Session) MoveAt(index int) (ValidatedMove, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.At(index)
}

func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) Status() rules.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Over
}

func (s *Session) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeededLocked()
}

func (s *Session) Mistake() MistakeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mistake
}

// LastEvaluation returns the most recently accepted evaluation and the FEN it
// belongs to, or nil when none has been accepted since the last reset.
func (s *Session) LastEvaluation() (*eval.Evaluation, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastEval == nil {
		return nil, ""
	}
	evCopy := *s.lastEval
	return &evCopy, s.lastEvalFEN
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentFEN := s.history.CurrentFEN()
	side, _ := rules.SideToMove(currentFEN)
	view := SessionView{
		ID:           s.id,
		InitialFEN:   s.initialFEN,
		CurrentFEN:   currentFEN,
		CurrentIndex: s.history.CurrentIndex(),
		SideToMove:   side,
		UserColor:    s.userColor,
		TargetResult: s.targetResult,
		Moves:        s.history.Slice(),
		Status:       s.status,
		Mistake:      s.mistake,
		Epoch:        s.epoch,
		Completed:    s.status.Over,
		Succeeded:    s.succeededLocked(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.lastEval != nil {
		evCopy := *s.lastEval
		view.Evaluation = &evCopy
		view.EvaluationFEN = s.lastEvalFEN
	}
	return view
}

// ApplyUserMove plays one user move given as SAN or UCI text against the
// position at the cursor. On success the move is committed (truncating any
// undone future), the mistake dialog is cleared and the pre-move evaluation
// is parked for the classifier.
func (s *Session) ApplyUserMove(token string) (ValidatedMove, error) {
	return s.applyUser(func(fen string) (rules.Applied, error) {
		return rules.Apply(fen, token)
	})
}

// ApplyUserMoveFromTo is the square-pair form used by board UIs.
func (s *Session) ApplyUserMoveFromTo(from, to, promotion string) (ValidatedMove, error) {
	return s.applyUser(func(fen string) (rules.Applied, error) {
		return rules.ApplyFromTo(fen, from, to, promotion)
	})
}

func (s *Session) applyUser(apply func(string) (rules.Applied, error)) (ValidatedMove, error) {
	s.mu.Lock()
	mv, events, err := s.applyUserLocked(apply)
	s.mu.Unlock()
	s.publish(events)
	return mv, err
}

func (s *Session) applyUserLocked(apply func(string) (rules.Applied, error)) (ValidatedMove, []Event, error) {
	if s.status.Over {
		return ValidatedMove{}, nil, ErrSessionTerminal
	}

	fenBefore := s.history.CurrentFEN()
	applied, err := apply(fenBefore)
	if err != nil {
		return ValidatedMove{}, nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	mv := validatedMoveFrom(applied, fenBefore)

	var before *eval.Evaluation
	if s.lastEval != nil && s.lastEvalFEN == fenBefore {
		evCopy := *s.lastEval
		before = &evCopy
	}
	s.compare = &pendingCompare{
		FENBefore: fenBefore,
		FENAfter:  mv.FENAfter,
		Before:    before,
		MoveSAN:   mv.SAN,
		MoveUCI:   mv.UCI,
	}
	s.mistake = MistakeRecord{}

	events := s.commitLocked(mv)
	return mv, events, nil
}

// Undo steps the cursor one ply back. It reports false at the initial
// position and never touches the stored entries.
func (s *Session) Undo() bool {
	return s.navigate(func() bool { return s.history.Undo() })
}

// Redo steps the cursor one ply forward within the recorded line.
func (s *Session) Redo() bool {
	return s.navigate(func() bool { return s.history.Redo() })
}

// JumpTo places the cursor at any valid index; -1 means the initial position.
func (s *Session) JumpTo(index int) bool {
	return s.navigate(func() bool { return s.history.JumpTo(index) })
}

func (s *Session) navigate(move func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !move() {
		return false
	}
	s.epoch++
	s.refreshStatusLocked()
	s.updatedAt = time.Now()
	return true
}

// ResetToInitial rewinds the session for a retry: history emptied, dialog and
// evaluations cleared, initial FEN kept.
func (s *Session) ResetToInitial() {
	s.mu.Lock()
	s.history.Reset()
	s.compare = nil
	s.lastEval = nil
	s.lastEvalFEN = ""
	s.lastEvalKey = ""
	s.mistake = MistakeRecord{}
	s.epoch++
	s.refreshStatusLocked()
	s.updatedAt = time.Now()
	event := Event{Type: EventSessionReset, SessionID: s.id, At: s.updatedAt, FEN: s.initialFEN}
	s.mu.Unlock()

	s.publish([]Event{event})
}

// DismissMistake closes the mistake dialog; reports whether one was open.
func (s *Session) DismissMistake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasOpen := s.mistake.Open
	s.mistake = MistakeRecord{}
	return wasOpen
}

// evaluationTarget captures the position an evaluation request should bind
// to, atomically with the epoch it must still match later.
func (s *Session) evaluationTarget() (fen string, epoch uint64, over bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CurrentFEN(), s.epoch, s.status.Over
}

type resolveOutcome struct {
	Accepted  bool
	Duplicate bool
	Compare   *pendingCompare
}

// resolveEvaluation accepts a provider result only while the request's FEN
// and epoch still describe the live position; anything else is stale and
// leaves no trace. A repeat of the already-accepted evaluation is flagged so
// classification runs at most once per (fen, score, mate).
func (s *Session) resolveEvaluation(req EvaluationRequest, evaluation eval.Evaluation) resolveOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.FEN != s.history.CurrentFEN() || req.Epoch != s.epoch {
		return resolveOutcome{}
	}

	key := evaluationKey(req.FEN, evaluation)
	out := resolveOutcome{Accepted: true, Duplicate: key == s.lastEvalKey}
	s.lastEvalKey = key

	evCopy := evaluation
	s.lastEval = &evCopy
	s.lastEvalFEN = req.FEN
	s.updatedAt = time.Now()

	if !out.Duplicate && s.compare != nil && s.compare.FENAfter == req.FEN {
		out.Compare = s.compare
		s.compare = nil
	}
	return out
}

// openMistakeIf installs the mistake dialog payload unless the user has
// already moved on from the position it was computed for.
func (s *Session) openMistakeIf(fen string, epoch uint64, rec MistakeRecord) bool {
	s.mu.Lock()
	if fen != s.history.CurrentFEN() || epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	rec.Open = true
	rec.CreatedAt = time.Now()
	s.mistake = rec
	s.updatedAt = rec.CreatedAt
	recCopy := rec
	event := Event{Type: EventMistakeDetected, SessionID: s.id, At: rec.CreatedAt, FEN: fen, Mistake: &recCopy}
	s.mu.Unlock()

	s.publish([]Event{event})
	return true
}

// applyReply commits the opponent's recommended move, re-checking right
// before application that the position it answers is still the live one.
func (s *Session) applyReply(fen string, epoch uint64, uciMove string) (ValidatedMove, bool, error) {
	s.mu.Lock()
	if fen != s.history.CurrentFEN() || epoch != s.epoch || s.status.Over {
		s.mu.Unlock()
		return ValidatedMove{}, false, nil
	}

	applied, err := rules.Apply(fen, uciMove)
	if err != nil {
		s.mu.Unlock()
		return ValidatedMove{}, false, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	mv := validatedMoveFrom(applied, fen)
	events := s.commitLocked(mv)
	s.mu.Unlock()

	s.publish(events)
	return mv, true, nil
}

func (s *Session) commitLocked(mv ValidatedMove) []Event {
	s.history.Append(mv)
	s.refreshStatusLocked()
	s.updatedAt = time.Now()

	moveCopy := mv
	events := []Event{{
		Type:      EventMoveApplied,
		SessionID: s.id,
		At:        s.updatedAt,
		FEN:       mv.FENAfter,
		Move:      &moveCopy,
	}}
	if s.status.Over {
		events = append(events, Event{
			Type:      EventSessionCompleted,
			SessionID: s.id,
			At:        s.updatedAt,
			FEN:       mv.FENAfter,
			Success:   s.succeededLocked(),
		})
	}
	return events
}

// refreshStatusLocked recomputes terminal state for the cursor position by
// replaying the committed line, which also catches history-dependent draws a
// lone FEN cannot show.
func (s *Session) refreshStatusLocked() {
	moves := s.history.MovesUCI()
	if len(moves) == 0 {
		if status, err := rules.Terminal(s.initialFEN); err == nil {
			s.status = status
		}
		return
	}
	game, err := rules.Replay(s.initialFEN, moves)
	if err != nil {
		if status, terr := rules.Terminal(s.history.CurrentFEN()); terr == nil {
			s.status = status
		}
		return
	}
	s.status = rules.StatusOf(game)
}

func (s *Session) succeededLocked() bool {
	if !s.status.Over {
		return false
	}
	if s.targetResult != "" {
		return s.status.Result == s.targetResult
	}
	switch s.userColor {
	case "white":
		return s.status.Result == "1-0"
	case "black":
		return s.status.Result == "0-1"
	}
	return false
}

func (s *Session) publish(events []Event) {
	for _, event := range events {
		s.bus.Publish(event)
	}
}

func validatedMoveFrom(applied rules.Applied, fenBefore string) ValidatedMove {
	mv := ValidatedMove{
		SAN:       applied.SAN,
		UCI:       applied.UCI,
		Color:     applied.Color,
		FENBefore: fenBefore,
		FENAfter:  applied.FENAfter,
		Timestamp: time.Now(),
	}
	if len(applied.UCI) >= 4 {
		mv.From = applied.UCI[:2]
		mv.To = applied.UCI[2:4]
		mv.Promotion = applied.UCI[4:]
	}
	return mv
}

func evaluationKey(fen string, evaluation eval.Evaluation) string {
	return fmt.Sprintf("%s|%d|%d", fen, evaluation.Score, evaluation.Mate)
}
