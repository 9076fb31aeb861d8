package trainerdto

import "time"

// MoveSummary is the outcome of one full move cycle: the trainee's move,
// the evaluation verdict, and the opponent's reply when one was played.
type MoveSummary struct {
	State       *SessionState   `json:"state"`
	PlayerSAN   string          `json:"player_san"`
	PlayerUCI   string          `json:"player_uci"`
	ReplySAN    string          `json:"reply_san,omitempty"`
	ReplyUCI    string          `json:"reply_uci,omitempty"`
	Annotation  string          `json:"annotation,omitempty"`
	Finished    bool            `json:"finished"`
	RunID       int64           `json:"run_id,omitempty"`
	Profile     *TraineeProfile `json:"profile,omitempty"`
	RatingDelta int             `json:"rating_delta,omitempty"`
}

// HintSuggestion carries the provider's recommended move for the
// current position without committing it to the session.
type HintSuggestion struct {
	MoveUCI  string        `json:"move_uci"`
	MoveSAN  string        `json:"move_san"`
	Duration time.Duration `json:"duration"`
}
