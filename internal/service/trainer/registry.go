package trainer

import (
	"sync"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/domain"
	"github.com/park285/Cheese-Endgame-Trainer/internal/drill"
	"github.com/park285/Cheese-Endgame-Trainer/internal/sessionstore"
	coretrainer "github.com/park285/Cheese-Endgame-Trainer/internal/trainer"
)

// liveSession binds one in-memory training session to its orchestrator plus
// the bookkeeping the service accumulates on top: mistake and inaccuracy
// tallies, the last observed evaluation wait and the persisted run outcome.
type liveSession struct {
	UUID        string
	TraineeHash string
	Drill       drill.Drill
	Session     *coretrainer.Session
	Orch        *coretrainer.Orchestrator
	StartedAt   time.Time

	mu           sync.Mutex
	mistakes     int
	inaccuracies int
	evalWait     time.Duration
	persisting   bool
	runID        int64
	profile      *domain.TraineeProfile
	ratingDelta  int
	unsubscribe  func()
}

func (l *liveSession) addMistake() {
	l.mu.Lock()
	l.mistakes++
	l.mu.Unlock()
}

func (l *liveSession) addInaccuracy() {
	l.mu.Lock()
	l.inaccuracies++
	l.mu.Unlock()
}

func (l *liveSession) counters() (mistakes, inaccuracies int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mistakes, l.inaccuracies
}

func (l *liveSession) setCounters(mistakes, inaccuracies int) {
	l.mu.Lock()
	l.mistakes = mistakes
	l.inaccuracies = inaccuracies
	l.mu.Unlock()
}

func (l *liveSession) noteEvalWait(d time.Duration) {
	l.mu.Lock()
	l.evalWait = d
	l.mu.Unlock()
}

func (l *liveSession) lastEvalWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evalWait
}

// beginPersist claims the one permitted run persistence for this session.
// A session that reaches a terminal position again after undo must not
// produce a second row.
func (l *liveSession) beginPersist() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.persisting {
		return false
	}
	l.persisting = true
	return true
}

func (l *liveSession) storeRunResult(runID int64, profile *domain.TraineeProfile, delta int) {
	l.mu.Lock()
	l.runID = runID
	l.profile = profile
	l.ratingDelta = delta
	l.mu.Unlock()
}

func (l *liveSession) runResult() (int64, *domain.TraineeProfile, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID, l.profile, l.ratingDelta
}

func (l *liveSession) snapshot() *sessionstore.Snapshot {
	view := l.Session.View()
	moves := make([]string, 0, len(view.Moves))
	for _, mv := range view.Moves {
		moves = append(moves, mv.UCI)
	}
	mistakes, inaccuracies := l.counters()
	return &sessionstore.Snapshot{
		SessionUUID:  l.UUID,
		TraineeHash:  l.TraineeHash,
		DrillID:      l.Drill.ID,
		InitialFEN:   view.InitialFEN,
		UserColor:    view.UserColor,
		TargetResult: view.TargetResult,
		Moves:        moves,
		CurrentIndex: view.CurrentIndex,
		Epoch:        view.Epoch,
		Mistakes:     mistakes,
		Inaccuracies: inaccuracies,
		StartedAt:    l.StartedAt,
	}
}

func (l *liveSession) close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	l.Orch.Close()
}

// registry indexes the sessions currently held in memory, one per trainee.
type registry struct {
	mu        sync.RWMutex
	byID      map[string]*liveSession
	byTrainee map[string]*liveSession
}

func newRegistry() *registry {
	return &registry{
		byID:      make(map[string]*liveSession),
		byTrainee: make(map[string]*liveSession),
	}
}

func (r *registry) add(live *liveSession) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byTrainee[live.TraineeHash]; ok {
		return existing
	}
	r.byID[live.UUID] = live
	r.byTrainee[live.TraineeHash] = live
	return live
}

func (r *registry) forTrainee(traineeHash string) *liveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTrainee[traineeHash]
}

func (r *registry) remove(sessionUUID string) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.byID[sessionUUID]
	if !ok {
		return nil
	}
	delete(r.byID, sessionUUID)
	delete(r.byTrainee, live.TraineeHash)
	return live
}

func (r *registry) drain() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	lives := make([]*liveSession, 0, len(r.byID))
	for _, live := range r.byID {
		lives = append(lives, live)
	}
	r.byID = make(map[string]*liveSession)
	r.byTrainee = make(map[string]*liveSession)
	return lives
}
