package domain

import "time"

// TrainingRun is one finished attempt at a drill, as persisted for history
// and rating updates.
type TrainingRun struct {
	ID           int64
	SessionUUID  string
	TraineeHash  string
	DrillID      string
	InitialFEN   string
	UserColor    string
	Result       string
	ResultMethod string
	TargetResult string
	Succeeded    bool
	MovesUCI     []string
	MovesSAN     []string
	Mistakes     int
	Inaccuracies int
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	EvalLatency  time.Duration
}

// TraineeProfile aggregates a trainee's results across runs.
type TraineeProfile struct {
	TraineeHash  string
	Rating       int
	RunsPlayed   int
	Solved       int
	Failed       int
	Abandoned    int
	Streak       int
	StreakType   string
	LastDrillID  string
	LastPlayedAt time.Time
	UpdatedAt    time.Time
	CreatedAt    time.Time
}
