package trainerdto

import "time"

// TrainingRun is one finished drill attempt as returned by history queries.
type TrainingRun struct {
	ID           int64         `json:"id"`
	SessionUUID  string        `json:"session_uuid"`
	DrillID      string        `json:"drill_id"`
	InitialFEN   string        `json:"initial_fen"`
	UserColor    string        `json:"user_color"`
	Result       string        `json:"result"`
	ResultMethod string        `json:"result_method,omitempty"`
	TargetResult string        `json:"target_result"`
	Succeeded    bool          `json:"succeeded"`
	MovesUCI     []string      `json:"moves_uci"`
	MovesSAN     []string      `json:"moves_san"`
	Mistakes     int           `json:"mistakes"`
	Inaccuracies int           `json:"inaccuracies"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
	EvalLatency  time.Duration `json:"eval_latency,omitempty"`
}
