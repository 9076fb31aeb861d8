package trainerdto

// DrillInfo is a catalog entry as shown to trainees picking a drill.
type DrillInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       int      `json:"rating"`
	PlayerColor  string   `json:"player_color"`
	TargetResult string   `json:"target_result"`
	Themes       []string `json:"themes,omitempty"`
}
