package eventwire

import (
	"time"

	coretrainer "github.com/park285/Cheese-Endgame-Trainer/internal/trainer"
	"github.com/park285/Cheese-Endgame-Trainer/pkg/trainerdto"
)

// Command ops accepted on the wire.
const (
	OpStartDrill     = "startDrill"
	OpMakeMove       = "makeMove"
	OpGetState       = "getState"
	OpUndo           = "undo"
	OpRedo           = "redo"
	OpJumpTo         = "jumpTo"
	OpReset          = "reset"
	OpDismissMistake = "dismissMistake"
	OpHint           = "hint"
	OpResign         = "resign"
	OpListDrills     = "drills"
	OpHistory        = "history"
	OpProfile        = "profile"
)

// Outbound frame kinds.
const (
	FrameResponse = "response"
	FrameEvent    = "event"
	FrameError    = "error"
)

// Command is the inbound envelope. Trainee is required on every op; Seq is
// echoed back so clients can pair responses with requests.
type Command struct {
	Op      string `json:"op"`
	Seq     int64  `json:"seq,omitempty"`
	Trainee string `json:"trainee"`
	Session string `json:"session,omitempty"`
	Drill   string `json:"drill,omitempty"`
	Move    string `json:"move,omitempty"`
	Index   *int   `json:"index,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Frame is the outbound envelope. Exactly one payload group is set, chosen by
// Type and Op.
type Frame struct {
	Type    string                     `json:"type"`
	Op      string                     `json:"op,omitempty"`
	Seq     int64                      `json:"seq,omitempty"`
	State   *trainerdto.SessionState   `json:"state,omitempty"`
	Move    *trainerdto.MoveSummary    `json:"move,omitempty"`
	Hint    *trainerdto.HintSuggestion `json:"hint,omitempty"`
	Drills  []*trainerdto.DrillInfo    `json:"drills,omitempty"`
	Runs    []*trainerdto.TrainingRun  `json:"runs,omitempty"`
	Profile *trainerdto.TraineeProfile `json:"profile,omitempty"`
	Resumed bool                       `json:"resumed,omitempty"`
	Event   *EventFrame                `json:"event,omitempty"`
	Error   *trainerdto.DomainError    `json:"error,omitempty"`
}

// EventFrame is a push notification about a live session. Scores and
// categories are from the side to move's point of view, exactly as the
// provider reported them.
type EventFrame struct {
	Kind          string    `json:"kind"`
	At            time.Time `json:"at"`
	FEN           string    `json:"fen,omitempty"`
	MoveSAN       string    `json:"moveSan,omitempty"`
	MoveUCI       string    `json:"moveUci,omitempty"`
	Color         string    `json:"color,omitempty"`
	Annotation    string    `json:"annotation,omitempty"`
	ScoreCP       int       `json:"scoreCp,omitempty"`
	Mate          int       `json:"mate,omitempty"`
	Category      string    `json:"category,omitempty"`
	BestMove      string    `json:"bestMove,omitempty"`
	VerdictBefore string    `json:"verdictBefore,omitempty"`
	VerdictAfter  string    `json:"verdictAfter,omitempty"`
	Success       bool      `json:"success,omitempty"`
}

func eventFrameOf(ev coretrainer.Event) *EventFrame {
	frame := &EventFrame{
		Kind:       string(ev.Type),
		At:         ev.At,
		FEN:        ev.FEN,
		Annotation: ev.Annotation,
		Success:    ev.Success,
	}
	if ev.Move != nil {
		frame.MoveSAN = ev.Move.SAN
		frame.MoveUCI = ev.Move.UCI
		frame.Color = ev.Move.Color
	}
	if ev.Evaluation != nil {
		frame.ScoreCP = ev.Evaluation.Score
		frame.Mate = ev.Evaluation.Mate
		if ev.Evaluation.Tablebase.Available {
			frame.Category = ev.Evaluation.Tablebase.Category
		}
	}
	if ev.Mistake != nil {
		frame.BestMove = ev.Mistake.BestMove
		frame.VerdictBefore = ev.Mistake.WDLBefore.Category()
		frame.VerdictAfter = ev.Mistake.WDLAfter.Category()
	}
	return frame
}
