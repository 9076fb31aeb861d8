package trainerdto

import "time"

// TraineeProfile aggregates one trainee's lifetime drill statistics.
type TraineeProfile struct {
	Trainee      string    `json:"trainee"`
	Rating       int       `json:"rating"`
	RunsPlayed   int       `json:"runs_played"`
	Solved       int       `json:"solved"`
	Failed       int       `json:"failed"`
	Abandoned    int       `json:"abandoned"`
	Streak       int       `json:"streak"`
	StreakType   string    `json:"streak_type,omitempty"`
	LastDrillID  string    `json:"last_drill_id,omitempty"`
	LastPlayedAt time.Time `json:"last_played_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
