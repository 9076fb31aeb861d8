package trainer

import "time"

// ValidatedMove is one committed ply. It is created only by a successful
// rules application and never mutated afterwards.
type ValidatedMove struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	SAN       string    `json:"san"`
	UCI       string    `json:"uci"`
	Color     string    `json:"color"`
	FENBefore string    `json:"fen_before"`
	FENAfter  string    `json:"fen_after"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the ordered, truncatable move list plus a cursor. Index -1 is
// the initial position, index i the position after entry i. History is plain
// data: the owning session serializes access to it.
type History struct {
	initialFEN string
	entries    []ValidatedMove
	current    int
}

func NewHistory(initialFEN string) *History {
	return &History{initialFEN: initialFEN, current: -1}
}

func (h *History) Len() int          { return len(h.entries) }
func (h *History) CurrentIndex() int { return h.current }
func (h *History) InitialFEN() string {
	return h.initialFEN
}

// At returns the entry at index, counting from 0.
func (h *History) At(index int) (ValidatedMove, bool) {
	if index < 0 || index >= len(h.entries) {
		return ValidatedMove{}, false
	}
	return h.entries[index], true
}

// Append discards any entries past the cursor, commits the move, and moves
// the cursor onto it. Making a move while rewound branches the line; the
// discarded future is gone, not kept as a variation tree.
func (h *History) Append(mv ValidatedMove) {
	h.entries = append(h.entries[:h.current+1], mv)
	h.current = len(h.entries) - 1
}

// TruncateAfter drops every entry past index. Passing -1 clears the list.
func (h *History) TruncateAfter(index int) {
	if index < -1 {
		index = -1
	}
	if index >= len(h.entries)-1 {
		return
	}
	h.entries = h.entries[:index+1]
	if h.current > index {
		h.current = index
	}
}

// Undo moves the cursor one ply back. At the initial position it reports
// false and changes nothing.
func (h *History) Undo() bool {
	if h.current < 0 {
		return false
	}
	h.current--
	return true
}

// Redo moves the cursor one ply forward within the recorded line.
func (h *History) Redo() bool {
	if h.current >= len(h.entries)-1 {
		return false
	}
	h.current++
	return true
}

// JumpTo places the cursor at an arbitrary valid index, -1 included.
func (h *History) JumpTo(index int) bool {
	if index < -1 || index > len(h.entries)-1 {
		return false
	}
	h.current = index
	return true
}

// CurrentFEN derives the position the cursor points at.
func (h *History) CurrentFEN() string {
	if h.current < 0 {
		return h.initialFEN
	}
	return h.entries[h.current].FENAfter
}

// FENAt derives the position for any valid cursor value.
func (h *History) FENAt(index int) (string, bool) {
	if index == -1 {
		return h.initialFEN, true
	}
	if index < 0 || index >= len(h.entries) {
		return "", false
	}
	return h.entries[index].FENAfter, true
}

// Slice returns a copy of the committed entries.
func (h *History) Slice() []ValidatedMove {
	out := make([]ValidatedMove, len(h.entries))
	copy(out, h.entries)
	return out
}

// MovesUCI lists the committed moves up to and including the cursor, the
// form replay and persistence want.
func (h *History) MovesUCI() []string {
	out := make([]string, 0, h.current+1)
	for i := 0; i <= h.current; i++ {
		out = append(out, h.entries[i].UCI)
	}
	return out
}

// Reset clears all entries and rewinds to the initial position.
func (h *History) Reset() {
	h.entries = nil
	h.current = -1
}
