package trainer

import (
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
)

// Verdict is the coarse win/draw/loss reading of an evaluation, always from
// the mover's point of view.
type Verdict int

const (
	VerdictLosing  Verdict = -1
	VerdictEqual   Verdict = 0
	VerdictWinning Verdict = 1
)

const (
	winningScoreThreshold = 200
	dubiousDropCP         = 100
	badDropCP             = 250
)

func (v Verdict) String() string {
	switch v {
	case VerdictWinning:
		return "winning"
	case VerdictLosing:
		return "losing"
	default:
		return "equal"
	}
}

// MistakeRecord is the payload behind the mistake dialog. It stays open
// until explicitly dismissed or until the next user move replaces the
// position it talks about. BestMove is the recommended move for the
// position before the user's mistake, in UCI form.
type MistakeRecord struct {
	Open      bool      `json:"open"`
	WDLBefore eval.WDL  `json:"wdl_before"`
	WDLAfter  eval.WDL  `json:"wdl_after"`
	BestMove  string    `json:"best_move,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Classification compares the evaluation right before a user move with the
// one right after it, both normalized to the mover's point of view.
type Classification struct {
	Agree          bool
	Before         Verdict
	After          Verdict
	TablebaseBased bool
	Mistake        bool
	WDLBefore      eval.WDL
	WDLAfter       eval.WDL
	Annotation     string
	ScoreDrop      int
}

// ScoreVerdict reads an evaluation coarsely. A reported mate always decides;
// otherwise the score must clear the threshold either way.
func ScoreVerdict(e eval.Evaluation) Verdict {
	if e.Mate > 0 {
		return VerdictWinning
	}
	if e.Mate < 0 {
		return VerdictLosing
	}
	if e.Score > winningScoreThreshold {
		return VerdictWinning
	}
	if e.Score < -winningScoreThreshold {
		return VerdictLosing
	}
	return VerdictEqual
}

// TablebaseVerdict groups perfect-play categories: cursed wins count as
// winning and blessed losses as losing.
func TablebaseVerdict(tb eval.Tablebase) (Verdict, bool) {
	if !tb.Available {
		return VerdictEqual, false
	}
	switch {
	case tb.WDL > 0:
		return VerdictWinning, true
	case tb.WDL < 0:
		return VerdictLosing, true
	default:
		return VerdictEqual, true
	}
}

// Classify judges one user move. Mistake detection is tablebase-primary:
// only a perfect-play verdict that got worse raises a mistake, engine scores
// alone never do. Engine deltas feed the softer "?!" and "?" annotations.
func Classify(before, after eval.Evaluation) Classification {
	c := Classification{
		Before: verdictOf(before),
		After:  verdictOf(after),
	}
	c.Agree = c.Before == c.After

	tbBefore, okBefore := TablebaseVerdict(before.Tablebase)
	tbAfter, okAfter := TablebaseVerdict(after.Tablebase)
	if okBefore && okAfter {
		c.TablebaseBased = true
		c.WDLBefore = before.Tablebase.WDL
		c.WDLAfter = after.Tablebase.WDL
		if tbBefore >= VerdictEqual && tbAfter < tbBefore {
			c.Mistake = true
		}
	}

	c.ScoreDrop = before.Score - after.Score
	if !c.Mistake && c.ScoreDrop > dubiousDropCP {
		c.Annotation = "?!"
		if c.ScoreDrop > badDropCP {
			c.Annotation = "?"
		}
	}
	return c
}

func verdictOf(e eval.Evaluation) Verdict {
	if v, ok := TablebaseVerdict(e.Tablebase); ok {
		return v
	}
	return ScoreVerdict(e)
}
