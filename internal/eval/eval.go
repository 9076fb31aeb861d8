package eval

import (
	"context"
	"errors"
)

// WDL is the perfect-play verdict for the side to move.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // lost, but the fifty-move rule may save it
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // won, but the fifty-move rule may spoil it
	WDLWin         WDL = 2
)

const (
	CategoryWin         = "win"
	CategoryCursedWin   = "cursed-win"
	CategoryDraw        = "draw"
	CategoryBlessedLoss = "blessed-loss"
	CategoryLoss        = "loss"
)

var ErrNoBestMove = errors.New("no best move available for position")

// Tablebase carries perfect-play data when the position is small enough.
type Tablebase struct {
	Available bool   `json:"available"`
	WDL       WDL    `json:"wdl"`
	DTZ       int    `json:"dtz"`
	Category  string `json:"category"`
	Precise   bool   `json:"precise"`
}

// Evaluation is the provider verdict for exactly one position. Score and Mate
// are from the side to move's point of view; Mate 0 means no forced mate was
// reported, and Mate takes precedence over Score whenever both are set.
type Evaluation struct {
	Score     int       `json:"score"`
	Mate      int       `json:"mate"`
	Tablebase Tablebase `json:"tablebase"`
}

// Config bounds a single Analyze call. Zero values fall back to provider
// defaults; Depth and TimeLimitMs trade latency for accuracy, MultiPV asks
// for that many candidate lines where the provider supports it.
type Config struct {
	Depth       int
	TimeLimitMs int
	MultiPV     int
}

// Provider is the pluggable evaluation source. Implementations must associate
// the returned Evaluation with the requested FEN and nothing else; callers are
// free to discard results that arrive late.
type Provider interface {
	Analyze(ctx context.Context, fen string, cfg Config) (Evaluation, error)
	BestMove(ctx context.Context, fen string) (string, error)
}

// Category maps a WDL to its wire name.
func (w WDL) Category() string {
	switch w {
	case WDLWin:
		return CategoryWin
	case WDLCursedWin:
		return CategoryCursedWin
	case WDLBlessedLoss:
		return CategoryBlessedLoss
	case WDLLoss:
		return CategoryLoss
	default:
		return CategoryDraw
	}
}

// Flip converts the verdict to the other side's point of view.
func (w WDL) Flip() WDL { return -w }

// CategoryToWDL parses provider category names. The maybe-* values come from
// imprecise DTZ answers and are folded toward their sure neighbour.
func CategoryToWDL(category string) (WDL, bool) {
	switch category {
	case CategoryWin:
		return WDLWin, true
	case CategoryCursedWin, "maybe-win":
		return WDLCursedWin, true
	case CategoryDraw, "maybe-draw":
		return WDLDraw, true
	case CategoryBlessedLoss, "maybe-loss":
		return WDLBlessedLoss, true
	case CategoryLoss:
		return WDLLoss, true
	default:
		return WDLDraw, false
	}
}

// WDLToScore converts a perfect-play verdict to an engine-like score so the
// two evaluation families stay comparable. DTZ acts as the progress metric.
func WDLToScore(wdl WDL, dtz int) int {
	const tablebaseWinScore = 30000
	if dtz < 0 {
		dtz = -dtz
	}
	if dtz > 1000 {
		dtz = 1000
	}
	switch wdl {
	case WDLWin:
		return tablebaseWinScore - dtz
	case WDLCursedWin:
		return tablebaseWinScore - 100 - dtz
	case WDLBlessedLoss:
		return -tablebaseWinScore + 100 + dtz
	case WDLLoss:
		return -tablebaseWinScore + dtz
	default:
		return 0
	}
}

// Flip returns the same evaluation seen from the other side to move.
func (e Evaluation) Flip() Evaluation {
	flipped := Evaluation{
		Score: -e.Score,
		Mate:  -e.Mate,
	}
	if e.Tablebase.Available {
		wdl := e.Tablebase.WDL.Flip()
		flipped.Tablebase = Tablebase{
			Available: true,
			WDL:       wdl,
			DTZ:       -e.Tablebase.DTZ,
			Category:  wdl.Category(),
			Precise:   e.Tablebase.Precise,
		}
	}
	return flipped
}
