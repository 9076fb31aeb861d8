package uci

import (
	"strings"
	"testing"
	"time"
)

func TestParseInfoCentipawns(t *testing.T) {
	line := "info depth 18 seldepth 24 multipv 1 score cp 35 nodes 123456 nps 1000000 pv e2e4 e7e5 g1f3"
	mv, cand, ok := parseInfo(line)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if mv != 1 || cand.Move != "e2e4" || cand.EvalCP != 35 || cand.Mate != 0 {
		t.Fatalf("unexpected candidate: mv=%d %+v", mv, cand)
	}
	if len(cand.Principal) != 3 || cand.Principal[2] != "g1f3" {
		t.Fatalf("principal variation not captured: %v", cand.Principal)
	}
}

func TestParseInfoMate(t *testing.T) {
	mv, cand, ok := parseInfo("info depth 12 multipv 2 score mate 3 pv e6d6 e8d8 e5e6")
	if !ok || mv != 2 {
		t.Fatalf("parse failed: ok=%v mv=%d", ok, mv)
	}
	if cand.Mate != 3 {
		t.Fatalf("mate distance lost: %+v", cand)
	}
	if cand.EvalCP <= 30000 {
		t.Fatalf("mate line should dominate centipawn scores: %d", cand.EvalCP)
	}

	_, losing, ok := parseInfo("info depth 12 score mate -2 pv e8d8")
	if !ok || losing.Mate != -2 || losing.EvalCP >= -30000 {
		t.Fatalf("losing mate mishandled: %+v", losing)
	}
}

func TestParseInfoIgnoresLinesWithoutPV(t *testing.T) {
	if _, _, ok := parseInfo("info depth 5 currmove e2e4 currmovenumber 1"); ok {
		t.Fatalf("lines without pv must be skipped")
	}
	if _, _, ok := parseInfo("info string NNUE evaluation enabled"); ok {
		t.Fatalf("string lines must be skipped")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("startpos", nil); got != "position startpos\n" {
		t.Fatalf("startpos: %q", got)
	}
	if got := buildPositionCommand("", []string{"e2e4"}); got != "position startpos moves e2e4\n" {
		t.Fatalf("empty fen with moves: %q", got)
	}
	fen := "4k3/8/4K3/4P3/8/8/8/8 w - - 0 1"
	got := buildPositionCommand(fen, []string{"e6d6", "e8d8"})
	if !strings.HasPrefix(got, "position fen "+fen) || !strings.Contains(got, "moves e6d6 e8d8") {
		t.Fatalf("fen with moves: %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	tokens, err := buildGoTokens(Limits{Depth: 14, MoveTimeMillis: 1500})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	joined := strings.Join(tokens, " ")
	if joined != "go depth 14 movetime 1500" {
		t.Fatalf("unexpected tokens: %q", joined)
	}

	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("empty limits must be rejected")
	}
}

func TestComputeSearchTimeoutBounds(t *testing.T) {
	if d := computeSearchTimeout(Limits{MoveTimeMillis: 1000}); d < time.Second {
		t.Fatalf("movetime timeout too small: %v", d)
	}
	if d := computeSearchTimeout(Limits{Depth: 40}); d > 20*time.Second {
		t.Fatalf("depth timeout should cap: %v", d)
	}
	if d := computeSearchTimeout(Limits{Depth: 2}); d < 6*time.Second {
		t.Fatalf("depth timeout should floor: %v", d)
	}
}

func TestCollapseCandidatesOrdersByMultiPV(t *testing.T) {
	m := map[int]Candidate{
		3: {Move: "c"},
		1: {Move: "a"},
		2: {Move: "b"},
	}
	out := collapseCandidates(m)
	if len(out) != 3 || out[0].Move != "a" || out[2].Move != "c" {
		t.Fatalf("candidates out of order: %+v", out)
	}
	if collapseCandidates(nil) != nil {
		t.Fatalf("empty map should collapse to nil")
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{HashMB: 64, MultiPV: 1}); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	if err := validateOptions(Options{HashMB: 0, MultiPV: 1}); err == nil {
		t.Fatalf("zero hash must be rejected")
	}
	if err := validateOptions(Options{HashMB: 64, MultiPV: 0}); err == nil {
		t.Fatalf("zero multipv must be rejected")
	}
}

func TestOptionsKeyDistinguishesConfigs(t *testing.T) {
	a := optionsKey(Options{Threads: 1, HashMB: 64, MultiPV: 1})
	b := optionsKey(Options{Threads: 1, HashMB: 64, MultiPV: 3})
	if a == b {
		t.Fatalf("different MultiPV must map to different buckets")
	}
}
