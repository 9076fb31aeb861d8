// Package sessionstore keeps JSON snapshots of live training sessions in
// Redis so a restarted process can pick a session back up. The snapshot
// carries the committed move line; replaying it through the rules engine is
// the source of truth on restore.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 30 * time.Minute

// Snapshot is the persisted form of one training session.
type Snapshot struct {
	SessionUUID  string    `json:"session_uuid"`
	TraineeHash  string    `json:"trainee_hash"`
	DrillID      string    `json:"drill_id"`
	InitialFEN   string    `json:"initial_fen"`
	UserColor    string    `json:"user_color"`
	TargetResult string    `json:"target_result"`
	Moves        []string  `json:"moves"` // committed line, UCI
	CurrentIndex int       `json:"current_index"`
	Epoch        uint64    `json:"epoch"`
	Mistakes     int       `json:"mistakes"`
	Inaccuracies int       `json:"inaccuracies"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an existing Redis client. ttl <= 0 falls back to DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keySession(id string) string { return "trainer:session:" + strings.TrimSpace(id) }
func (s *Store) keyActive(hash string) string {
	return "trainer:active:" + strings.TrimSpace(hash)
}

// Save writes the snapshot and refreshes its TTL.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("cannot save nil session snapshot")
	}
	if strings.TrimSpace(snap.SessionUUID) == "" {
		return errors.New("session snapshot needs a uuid")
	}
	snap.UpdatedAt = time.Now()
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	return s.rdb.Set(ctx, s.keySession(snap.SessionUUID), raw, s.ttl).Err()
}

// Load reads a snapshot; a missing key returns (nil, nil).
func (s *Store) Load(ctx context.Context, sessionUUID string) (*Snapshot, error) {
	if strings.TrimSpace(sessionUUID) == "" {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, s.keySession(sessionUUID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, sessionUUID string) error {
	if strings.TrimSpace(sessionUUID) == "" {
		return nil
	}
	return s.rdb.Del(ctx, s.keySession(sessionUUID)).Err()
}

// Touch refreshes the snapshot TTL without rewriting it.
func (s *Store) Touch(ctx context.Context, sessionUUID string) error {
	if strings.TrimSpace(sessionUUID) == "" {
		return nil
	}
	return s.rdb.Expire(ctx, s.keySession(sessionUUID), s.ttl).Err()
}

// SetActive points a trainee at their live session.
func (s *Store) SetActive(ctx context.Context, traineeHash, sessionUUID string) error {
	if strings.TrimSpace(traineeHash) == "" || strings.TrimSpace(sessionUUID) == "" {
		return nil
	}
	return s.rdb.Set(ctx, s.keyActive(traineeHash), strings.TrimSpace(sessionUUID), s.ttl).Err()
}

// ActiveSession returns the trainee's live session UUID, or "" when none.
func (s *Store) ActiveSession(ctx context.Context, traineeHash string) (string, error) {
	if strings.TrimSpace(traineeHash) == "" {
		return "", nil
	}
	id, err := s.rdb.Get(ctx, s.keyActive(traineeHash)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClearActive drops the trainee → session pointer.
func (s *Store) ClearActive(ctx context.Context, traineeHash string) error {
	if strings.TrimSpace(traineeHash) == "" {
		return nil
	}
	return s.rdb.Del(ctx, s.keyActive(traineeHash)).Err()
}
