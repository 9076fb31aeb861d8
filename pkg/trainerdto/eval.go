package trainerdto

// EvaluationInfo is the most recent accepted evaluation for a session,
// normalized to the trainee's point of view.
type EvaluationInfo struct {
	FEN        string `json:"fen"`
	ScoreCP    int    `json:"score_cp"`
	Mate       int    `json:"mate,omitempty"`
	Tablebase  bool   `json:"tablebase"`
	WDL        int    `json:"wdl"`
	DTZ        int    `json:"dtz,omitempty"`
	Category   string `json:"category,omitempty"`
	Precise    bool   `json:"precise"`
	Annotation string `json:"annotation,omitempty"`
}

// MistakeInfo describes an open mistake report awaiting dismissal.
type MistakeInfo struct {
	Open          bool   `json:"open"`
	WDLBefore     int    `json:"wdl_before"`
	WDLAfter      int    `json:"wdl_after"`
	VerdictBefore string `json:"verdict_before"`
	VerdictAfter  string `json:"verdict_after"`
	BestMove      string `json:"best_move,omitempty"`
	Message       string `json:"message,omitempty"`
}
