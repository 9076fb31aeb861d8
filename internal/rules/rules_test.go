package rules

import (
	"testing"
)

const kpkFEN = "4k3/8/4K3/4P3/8/8/8/8 w - - 0 1"

func TestApplyAcceptsSANAndUCI(t *testing.T) {
	fromSAN, err := Apply(kpkFEN, "Kd6")
	if err != nil {
		t.Fatalf("apply SAN: %v", err)
	}
	if fromSAN.SAN != "Kd6" || fromSAN.UCI != "e6d6" {
		t.Fatalf("unexpected applied move: %+v", fromSAN)
	}
	if fromSAN.Color != "white" {
		t.Fatalf("expected white mover, got %s", fromSAN.Color)
	}

	fromUCI, err := Apply(kpkFEN, "e6d6")
	if err != nil {
		t.Fatalf("apply UCI: %v", err)
	}
	if fromUCI.SAN != fromSAN.SAN || fromUCI.FENAfter != fromSAN.FENAfter {
		t.Fatalf("SAN and UCI paths disagree: %+v vs %+v", fromSAN, fromUCI)
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	if _, err := Apply(kpkFEN, "Ka1"); err == nil {
		t.Fatal("expected illegal SAN move to fail")
	}
	if _, err := ApplyFromTo(kpkFEN, "e6", "a1", ""); err == nil {
		t.Fatal("expected illegal from/to move to fail")
	}
}

func TestLegalMovesForEndgame(t *testing.T) {
	moves, err := LegalMoves(kpkFEN)
	if err != nil {
		t.Fatalf("legal moves: %v", err)
	}
	// King e6 has d5/f5/d6/f6; the e5 pawn is blocked by its own king.
	if len(moves) != 4 {
		t.Fatalf("expected 4 legal moves, got %d (%v)", len(moves), moves)
	}
	found := false
	for _, mv := range moves {
		if mv == "e6d6" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected e6d6 among legal moves, got %v", moves)
	}
}

func TestTerminalStates(t *testing.T) {
	cases := []struct {
		name   string
		fen    string
		over   bool
		reason string
		result string
	}{
		{name: "in progress", fen: kpkFEN},
		{
			name:   "checkmate",
			fen:    "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
			over:   true,
			reason: "checkmate",
			result: "0-1",
		},
		{
			name:   "stalemate",
			fen:    "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
			over:   true,
			reason: "stalemate",
			result: "1/2-1/2",
		},
	}

	for _, tc := range cases {
		status, err := Terminal(tc.fen)
		if err != nil {
			t.Fatalf("%s: terminal: %v", tc.name, err)
		}
		if status.Over != tc.over {
			t.Fatalf("%s: expected over=%v, got %+v", tc.name, tc.over, status)
		}
		if tc.over && (status.Reason != tc.reason || status.Result != tc.result) {
			t.Fatalf("%s: unexpected status %+v", tc.name, status)
		}
	}
}

func TestTerminalBareKingsIsDraw(t *testing.T) {
	status, err := Terminal("4k3/8/4K3/8/8/8/8/8 w - - 0 1")
	if err != nil {
		t.Fatalf("terminal: %v", err)
	}
	if !status.Over || status.Result != "1/2-1/2" {
		t.Fatalf("expected automatic draw for bare kings, got %+v", status)
	}
}

func TestReplayRebuildsPosition(t *testing.T) {
	applied, err := Apply(kpkFEN, "Kd6")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	game, err := Replay(kpkFEN, []string{"e6d6"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := game.FEN(); got != applied.FENAfter {
		t.Fatalf("replayed FEN %s differs from applied FEN %s", got, applied.FENAfter)
	}
	if status := StatusOf(game); status.Over {
		t.Fatalf("expected game in progress, got %+v", status)
	}

	side, err := SideToMove(applied.FENAfter)
	if err != nil {
		t.Fatalf("side to move: %v", err)
	}
	if side != "black" {
		t.Fatalf("expected black to move, got %s", side)
	}
}

func TestValidateFEN(t *testing.T) {
	if err := ValidateFEN(kpkFEN); err != nil {
		t.Fatalf("valid fen rejected: %v", err)
	}
	if err := ValidateFEN("definitely not a fen"); err == nil {
		t.Fatal("expected invalid fen to be rejected")
	}
	if err := ValidateFEN("   "); err == nil {
		t.Fatal("expected blank fen to be rejected")
	}
}
