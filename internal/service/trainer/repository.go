package trainer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/domain"
)

var ErrDuplicateRun = errors.New("training run already exists")

type Repository interface {
	InsertRun(ctx context.Context, run *domain.TrainingRun) (int64, error)
	GetRecentRuns(ctx context.Context, traineeHash string, limit int) ([]*domain.TrainingRun, error)
	GetRunBySession(ctx context.Context, sessionUUID string, traineeHash string) (*domain.TrainingRun, error)
	GetProfile(ctx context.Context, traineeHash string) (*domain.TraineeProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.TraineeProfile) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertRun(ctx context.Context, run *domain.TrainingRun) (int64, error) {
	if run == nil {
		return 0, fmt.Errorf("nil training run payload")
	}

	movesUCI, err := json.Marshal(run.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(run.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO training_runs (
			session_uuid,
			trainee_hash,
			drill_id,
			initial_fen,
			user_color,
			result,
			result_method,
			target_result,
			succeeded,
			moves_uci,
			moves_san,
			mistakes,
			inaccuracies,
			started_at,
			ended_at,
			duration_ms,
			eval_latency_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		run.SessionUUID,
		run.TraineeHash,
		run.DrillID,
		run.InitialFEN,
		run.UserColor,
		run.Result,
		run.ResultMethod,
		run.TargetResult,
		run.Succeeded,
		movesUCI,
		movesSAN,
		run.Mistakes,
		run.Inaccuracies,
		run.StartedAt,
		run.EndedAt,
		run.Duration.Milliseconds(),
		run.EvalLatency.Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateRun
	}
	if err != nil {
		return 0, fmt.Errorf("insert training run: %w", err)
	}
	return id.Int64, nil
}

const runColumns = `
		id,
		session_uuid,
		trainee_hash,
		drill_id,
		initial_fen,
		user_color,
		result,
		result_method,
		target_result,
		succeeded,
		moves_uci,
		moves_san,
		mistakes,
		inaccuracies,
		started_at,
		ended_at,
		duration_ms,
		eval_latency_ms`

func scanRun(scan func(dest ...any) error) (*domain.TrainingRun, error) {
	var (
		run          domain.TrainingRun
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
		latencyMS    sql.NullInt64
	)
	if err := scan(
		&run.ID,
		&run.SessionUUID,
		&run.TraineeHash,
		&run.DrillID,
		&run.InitialFEN,
		&run.UserColor,
		&run.Result,
		&run.ResultMethod,
		&run.TargetResult,
		&run.Succeeded,
		&movesUCIJSON,
		&movesSANJSON,
		&run.Mistakes,
		&run.Inaccuracies,
		&run.StartedAt,
		&run.EndedAt,
		&durationMS,
		&latencyMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		run.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if latencyMS.Valid {
		run.EvalLatency = time.Duration(latencyMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &run.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &run.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &run, nil
}

func (r *repository) GetRecentRuns(ctx context.Context, traineeHash string, limit int) ([]*domain.TrainingRun, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT` + runColumns + `
		FROM training_runs
		WHERE trainee_hash = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, traineeHash, limit)
	if err != nil {
		return nil, fmt.Errorf("select training runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.TrainingRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan training run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *repository) GetRunBySession(ctx context.Context, sessionUUID string, traineeHash string) (*domain.TrainingRun, error) {
	const query = `
		SELECT` + runColumns + `
		FROM training_runs
		WHERE session_uuid = $1 AND trainee_hash = $2
		ORDER BY ended_at DESC
		LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, sessionUUID, traineeHash).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select training run by session: %w", err)
	}
	return run, nil
}

func (r *repository) GetProfile(ctx context.Context, traineeHash string) (*domain.TraineeProfile, error) {
	const query = `
		SELECT
			trainee_hash,
			rating,
			runs_played,
			solved,
			failed,
			abandoned,
			streak,
			streak_type,
			last_drill_id,
			last_played_at,
			updated_at,
			created_at
		FROM trainee_profiles
		WHERE trainee_hash = $1
		LIMIT 1`

	var profile domain.TraineeProfile
	err := r.db.QueryRowContext(ctx, query, traineeHash).Scan(
		&profile.TraineeHash,
		&profile.Rating,
		&profile.RunsPlayed,
		&profile.Solved,
		&profile.Failed,
		&profile.Abandoned,
		&profile.Streak,
		&profile.StreakType,
		&profile.LastDrillID,
		&profile.LastPlayedAt,
		&profile.UpdatedAt,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select trainee profile: %w", err)
	}
	return &profile, nil
}

func (r *repository) UpsertProfile(ctx context.Context, profile *domain.TraineeProfile) error {
	if profile == nil {
		return fmt.Errorf("nil trainee profile payload")
	}
	const query = `
		INSERT INTO trainee_profiles (
			trainee_hash,
			rating,
			runs_played,
			solved,
			failed,
			abandoned,
			streak,
			streak_type,
			last_drill_id,
			last_played_at,
			updated_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (trainee_hash)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			runs_played = EXCLUDED.runs_played,
			solved = EXCLUDED.solved,
			failed = EXCLUDED.failed,
			abandoned = EXCLUDED.abandoned,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_drill_id = EXCLUDED.last_drill_id,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		profile.TraineeHash,
		profile.Rating,
		profile.RunsPlayed,
		profile.Solved,
		profile.Failed,
		profile.Abandoned,
		profile.Streak,
		profile.StreakType,
		profile.LastDrillID,
		profile.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert trainee profile: %w", err)
	}
	return nil
}
