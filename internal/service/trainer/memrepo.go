package trainer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-Endgame-Trainer/internal/domain"
)

// memrepo is a development-only in-memory repository implementation used when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	runsByID      map[int64]*domain.TrainingRun
	runsByTrainee map[string][]*domain.TrainingRun // traineeHash -> slice (append, latest last)
	runsBySession map[string]*domain.TrainingRun   // sessionUUID -> run

	profiles map[string]*domain.TraineeProfile // traineeHash -> profile
}

func NewMemoryRepository() Repository {
	return &memrepo{
		runsByID:      make(map[int64]*domain.TrainingRun),
		runsByTrainee: make(map[string][]*domain.TrainingRun),
		runsBySession: make(map[string]*domain.TrainingRun),
		profiles:      make(map[string]*domain.TraineeProfile),
	}
}

func (m *memrepo) InsertRun(ctx context.Context, run *domain.TrainingRun) (int64, error) {
	if run == nil {
		return 0, ErrDuplicateRun
	}

	key := strings.TrimSpace(run.SessionUUID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runsBySession[key]; exists {
		return 0, ErrDuplicateRun
	}

	m.nextID++
	id := m.nextID
	stored := *run
	stored.ID = id

	m.runsByID[id] = &stored
	m.runsBySession[key] = &stored
	m.runsByTrainee[run.TraineeHash] = append(m.runsByTrainee[run.TraineeHash], &stored)

	return id, nil
}

func (m *memrepo) GetRecentRuns(ctx context.Context, traineeHash string, limit int) ([]*domain.TrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.runsByTrainee[traineeHash]
	if len(list) == 0 {
		return []*domain.TrainingRun{}, nil
	}
	items := append([]*domain.TrainingRun(nil), list...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetRunBySession(ctx context.Context, sessionUUID string, traineeHash string) (*domain.TrainingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.runsBySession[strings.TrimSpace(sessionUUID)]; ok && r != nil && r.TraineeHash == traineeHash {
		stored := *r
		return &stored, nil
	}
	return nil, nil
}

func (m *memrepo) GetProfile(ctx context.Context, traineeHash string) (*domain.TraineeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(traineeHash)]; ok && p != nil {
		stored := *p
		return &stored, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, profile *domain.TraineeProfile) error {
	if profile == nil {
		return nil
	}
	key := strings.TrimSpace(profile.TraineeHash)
	stored := *profile
	m.mu.Lock()
	m.profiles[key] = &stored
	m.mu.Unlock()
	return nil
}
