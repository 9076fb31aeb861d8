package trainer

import (
	"fmt"
	"testing"
)

func entry(n int) ValidatedMove {
	return ValidatedMove{
		UCI:       fmt.Sprintf("m%d", n),
		SAN:       fmt.Sprintf("M%d", n),
		FENBefore: fmt.Sprintf("fen-%d", n),
		FENAfter:  fmt.Sprintf("fen-%d", n+1),
	}
}

func TestHistoryAppendAdvancesCursor(t *testing.T) {
	h := NewHistory("fen-0")
	if h.CurrentIndex() != -1 || h.CurrentFEN() != "fen-0" {
		t.Fatalf("fresh history should sit at the initial position")
	}

	h.Append(entry(0))
	h.Append(entry(1))
	if h.Len() != 2 || h.CurrentIndex() != 1 || h.CurrentFEN() != "fen-2" {
		t.Fatalf("after two appends: len=%d index=%d fen=%q", h.Len(), h.CurrentIndex(), h.CurrentFEN())
	}
}

func TestHistoryAppendTruncatesUndoneFuture(t *testing.T) {
	h := NewHistory("fen-0")
	h.Append(entry(0))
	h.Append(entry(1))
	h.Append(entry(2))

	if !h.Undo() || !h.Undo() {
		t.Fatalf("undo should succeed twice")
	}
	if h.CurrentIndex() != 0 {
		t.Fatalf("cursor should be at 0, got %d", h.CurrentIndex())
	}

	branch := ValidatedMove{UCI: "b1", SAN: "B1", FENBefore: "fen-1", FENAfter: "fen-b"}
	h.Append(branch)

	if h.Len() != 2 {
		t.Fatalf("branching should discard the future: len=%d", h.Len())
	}
	got, ok := h.At(1)
	if !ok || got.UCI != "b1" {
		t.Fatalf("entry 1 should be the branch move: %+v ok=%v", got, ok)
	}
	if h.CurrentIndex() != 1 || h.CurrentFEN() != "fen-b" {
		t.Fatalf("cursor should follow the branch: index=%d fen=%q", h.CurrentIndex(), h.CurrentFEN())
	}
}

func TestHistoryNavigationBounds(t *testing.T) {
	h := NewHistory("fen-0")
	if h.Undo() {
		t.Fatalf("undo at the initial position must fail")
	}
	if h.Redo() {
		t.Fatalf("redo with no entries must fail")
	}

	h.Append(entry(0))
	if h.Redo() {
		t.Fatalf("redo at the last index must fail")
	}
	if !h.Undo() || h.CurrentIndex() != -1 {
		t.Fatalf("undo should step back to -1")
	}
	if h.Undo() {
		t.Fatalf("second undo must fail at -1")
	}
	if !h.Redo() || h.CurrentIndex() != 0 {
		t.Fatalf("redo should step forward to 0")
	}
}

func TestHistoryJumpBounds(t *testing.T) {
	h := NewHistory("fen-0")
	h.Append(entry(0))
	h.Append(entry(1))

	if h.JumpTo(2) || h.JumpTo(-2) {
		t.Fatalf("out-of-range jumps must fail")
	}
	if !h.JumpTo(-1) || h.CurrentFEN() != "fen-0" {
		t.Fatalf("jump to -1 should land on the initial position")
	}
	if !h.JumpTo(1) || h.CurrentFEN() != "fen-2" {
		t.Fatalf("jump to last index failed")
	}
}

func TestHistoryTruncateAfter(t *testing.T) {
	h := NewHistory("fen-0")
	for i := 0; i < 4; i++ {
		h.Append(entry(i))
	}

	h.TruncateAfter(1)
	if h.Len() != 2 || h.CurrentIndex() != 1 {
		t.Fatalf("truncate should clamp cursor: len=%d index=%d", h.Len(), h.CurrentIndex())
	}

	h.TruncateAfter(-1)
	if h.Len() != 0 || h.CurrentIndex() != -1 {
		t.Fatalf("truncate to -1 should clear: len=%d index=%d", h.Len(), h.CurrentIndex())
	}
}

func TestHistoryMovesUCIStopsAtCursor(t *testing.T) {
	h := NewHistory("fen-0")
	for i := 0; i < 3; i++ {
		h.Append(entry(i))
	}
	h.Undo()

	moves := h.MovesUCI()
	if len(moves) != 2 || moves[1] != "m1" {
		t.Fatalf("moves up to cursor: %v", moves)
	}
}

func TestHistorySliceIsACopy(t *testing.T) {
	h := NewHistory("fen-0")
	h.Append(entry(0))

	snapshot := h.Slice()
	snapshot[0].SAN = "mutated"
	got, _ := h.At(0)
	if got.SAN == "mutated" {
		t.Fatalf("Slice must not expose internal storage")
	}
}
