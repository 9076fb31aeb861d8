package trainer

import (
	"testing"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
)

func tbEval(wdl eval.WDL, dtz int) eval.Evaluation {
	return eval.Evaluation{
		Score: eval.WDLToScore(wdl, dtz),
		Tablebase: eval.Tablebase{
			Available: true,
			WDL:       wdl,
			DTZ:       dtz,
			Category:  wdl.Category(),
			Precise:   true,
		},
	}
}

func TestScoreVerdict(t *testing.T) {
	cases := []struct {
		name string
		e    eval.Evaluation
		want Verdict
	}{
		{"mate for mover", eval.Evaluation{Mate: 5, Score: -50}, VerdictWinning},
		{"mate against mover", eval.Evaluation{Mate: -2, Score: 500}, VerdictLosing},
		{"big plus", eval.Evaluation{Score: 201}, VerdictWinning},
		{"big minus", eval.Evaluation{Score: -201}, VerdictLosing},
		{"threshold is exclusive", eval.Evaluation{Score: 200}, VerdictEqual},
		{"balanced", eval.Evaluation{Score: 0}, VerdictEqual},
	}
	for _, tc := range cases {
		if got := ScoreVerdict(tc.e); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestTablebaseVerdictGrouping(t *testing.T) {
	cases := []struct {
		wdl  eval.WDL
		want Verdict
	}{
		{eval.WDLWin, VerdictWinning},
		{eval.WDLCursedWin, VerdictWinning},
		{eval.WDLDraw, VerdictEqual},
		{eval.WDLBlessedLoss, VerdictLosing},
		{eval.WDLLoss, VerdictLosing},
	}
	for _, tc := range cases {
		got, ok := TablebaseVerdict(eval.Tablebase{Available: true, WDL: tc.wdl})
		if !ok || got != tc.want {
			t.Errorf("wdl %d: got %v ok=%v", tc.wdl, got, ok)
		}
	}
	if _, ok := TablebaseVerdict(eval.Tablebase{}); ok {
		t.Errorf("unavailable tablebase must not yield a verdict")
	}
}

func TestClassifyWinToDrawIsMistake(t *testing.T) {
	c := Classify(tbEval(eval.WDLWin, 11), tbEval(eval.WDLDraw, 0))
	if c.Agree {
		t.Fatalf("win to draw must disagree")
	}
	if !c.Mistake || !c.TablebaseBased {
		t.Fatalf("win to draw must be a mistake: %+v", c)
	}
	if c.WDLBefore != eval.WDLWin || c.WDLAfter != eval.WDLDraw {
		t.Fatalf("wdl payload wrong: %+v", c)
	}
	if c.Annotation != "" {
		t.Fatalf("mistakes do not carry the soft annotation: %+v", c)
	}
}

func TestClassifyHeldWinIsNotMistake(t *testing.T) {
	c := Classify(tbEval(eval.WDLWin, 11), tbEval(eval.WDLWin, 9))
	if !c.Agree || c.Mistake {
		t.Fatalf("held win misclassified: %+v", c)
	}
}

func TestClassifyDrawToLossIsMistake(t *testing.T) {
	c := Classify(tbEval(eval.WDLDraw, 0), tbEval(eval.WDLLoss, 14))
	if !c.Mistake {
		t.Fatalf("draw to loss must be a mistake: %+v", c)
	}
}

func TestClassifyWinToCursedWinHoldsGroup(t *testing.T) {
	c := Classify(tbEval(eval.WDLWin, 11), tbEval(eval.WDLCursedWin, 80))
	if c.Mistake {
		t.Fatalf("cursed win still counts as winning: %+v", c)
	}
}

func TestClassifyLossCannotGetWorse(t *testing.T) {
	c := Classify(tbEval(eval.WDLBlessedLoss, 90), tbEval(eval.WDLLoss, 12))
	if c.Mistake {
		t.Fatalf("already losing positions raise no mistake: %+v", c)
	}
}

func TestClassifyEngineOnlyNeverRaisesMistake(t *testing.T) {
	before := eval.Evaluation{Score: 320}
	after := eval.Evaluation{Score: -40}
	c := Classify(before, after)
	if c.Mistake {
		t.Fatalf("engine-only comparison must not raise a mistake: %+v", c)
	}
	if c.Agree {
		t.Fatalf("winning to equal should disagree: %+v", c)
	}
	if c.Annotation != "?" {
		t.Fatalf("a 360cp drop earns a question mark: %+v", c)
	}
}

func TestClassifyAnnotationThresholds(t *testing.T) {
	if c := Classify(eval.Evaluation{Score: 150}, eval.Evaluation{Score: 30}); c.Annotation != "?!" {
		t.Errorf("120cp drop should earn ?!: %+v", c)
	}
	if c := Classify(eval.Evaluation{Score: 150}, eval.Evaluation{Score: 100}); c.Annotation != "" {
		t.Errorf("50cp drop earns nothing: %+v", c)
	}
	if c := Classify(eval.Evaluation{Score: 30}, eval.Evaluation{Score: 90}); c.Annotation != "" {
		t.Errorf("improvements earn nothing: %+v", c)
	}
}

func TestClassifyMatePrecedenceOverTablebaseScore(t *testing.T) {
	// Mate reported without tablebase data on either side.
	before := eval.Evaluation{Score: 80, Mate: 4}
	after := eval.Evaluation{Score: 60}
	c := Classify(before, after)
	if c.Before != VerdictWinning || c.After != VerdictEqual || c.Agree {
		t.Fatalf("mate must decide the before verdict: %+v", c)
	}
}
