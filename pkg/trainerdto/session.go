package trainerdto

// SessionState is the full presentation snapshot of one training session.
type SessionState struct {
	SessionUUID  string          `json:"session_uuid"`
	DrillID      string          `json:"drill_id"`
	DrillName    string          `json:"drill_name,omitempty"`
	InitialFEN   string          `json:"initial_fen"`
	FEN          string          `json:"fen"`
	SideToMove   string          `json:"side_to_move"`
	UserColor    string          `json:"user_color"`
	TargetResult string          `json:"target_result"`
	MovesSAN     []string        `json:"moves_san"`
	MovesUCI     []string        `json:"moves_uci"`
	CurrentIndex int             `json:"current_index"`
	MoveCount    int             `json:"move_count"`
	Evaluation   *EvaluationInfo `json:"evaluation,omitempty"`
	Mistake      *MistakeInfo    `json:"mistake,omitempty"`
	Mistakes     int             `json:"mistakes"`
	Inaccuracies int             `json:"inaccuracies"`
	Completed    bool            `json:"completed"`
	Result       string          `json:"result,omitempty"`
	ResultMethod string          `json:"result_method,omitempty"`
	Succeeded    bool            `json:"succeeded"`
	RunID        int64           `json:"run_id,omitempty"`
	Profile      *TraineeProfile `json:"profile,omitempty"`
	RatingDelta  int             `json:"rating_delta,omitempty"`
	Message      string          `json:"message,omitempty"`
}
