package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Applied reports a single successful move application.
type Applied struct {
	FENAfter string
	SAN      string
	UCI      string
	Color    string // "white" | "black", side that moved
}

// Status is the terminal-state report for a position.
type Status struct {
	Over   bool
	Reason string // lowercased method, e.g. "checkmate", "stalemate"
	Result string // "1-0" | "0-1" | "1/2-1/2", empty while in progress
}

// ValidateFEN rejects positions the rules engine cannot host.
func ValidateFEN(fen string) error {
	_, err := gameFromFEN(fen)
	return err
}

// SideToMove reports "white" or "black" for the position.
func SideToMove(fen string) (string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	return colorName(game.Position().Turn()), nil
}

// LegalMoves lists every legal move in UCI form.
func LegalMoves(fen string) ([]string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	valid := game.ValidMoves()
	moves := make([]string, 0, len(valid))
	for i := range valid {
		moves = append(moves, strings.ToLower(valid[i].String()))
	}
	return moves, nil
}

// Apply plays one move given as SAN or UCI text and returns the applied form.
// SAN is tried first, matching how players usually type moves.
func Apply(fen, token string) (Applied, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Applied{}, err
	}

	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	pos := game.Position()

	text := strings.TrimSpace(token)
	move, decodeErr := notationSAN.Decode(pos, text)
	if decodeErr != nil {
		move, decodeErr = notationUCI.Decode(pos, strings.ToLower(text))
	}
	if decodeErr != nil {
		return Applied{}, fmt.Errorf("decode move %q: %w", token, decodeErr)
	}
	if err := game.Move(move, nil); err != nil {
		return Applied{}, fmt.Errorf("apply move %q: %w", token, err)
	}

	return Applied{
		FENAfter: game.FEN(),
		SAN:      notationSAN.Encode(pos, move),
		UCI:      strings.ToLower(notationUCI.Encode(pos, move)),
		Color:    colorName(pos.Turn()),
	}, nil
}

// ApplyFromTo plays a move given as from/to squares plus optional promotion piece.
func ApplyFromTo(fen, from, to, promotion string) (Applied, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	game, err := gameFromFEN(fen)
	if err != nil {
		return Applied{}, err
	}

	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	pos := game.Position()

	move, decodeErr := notationUCI.Decode(pos, uci)
	if decodeErr != nil {
		return Applied{}, fmt.Errorf("decode move %q: %w", uci, decodeErr)
	}
	if err := game.Move(move, nil); err != nil {
		return Applied{}, fmt.Errorf("apply move %q: %w", uci, err)
	}

	return Applied{
		FENAfter: game.FEN(),
		SAN:      notationSAN.Encode(pos, move),
		UCI:      uci,
		Color:    colorName(pos.Turn()),
	}, nil
}

// Terminal reports whether the position has ended and how. Repetition draws
// cannot be seen from a lone FEN; they surface through replayed games instead.
func Terminal(fen string) (Status, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Status{}, err
	}
	return statusFromGame(game), nil
}

// Replay reconstructs a game from an initial FEN and recorded UCI moves.
func Replay(initialFEN string, movesUCI []string) (*nchess.Game, error) {
	game, err := gameFromFEN(initialFEN)
	if err != nil {
		return nil, err
	}
	notation := nchess.UCINotation{}
	for _, mv := range movesUCI {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}

// StatusOf reports terminal state for an already-built game, which also
// catches history-dependent draws Replay can surface.
func StatusOf(game *nchess.Game) Status {
	return statusFromGame(game)
}

func statusFromGame(game *nchess.Game) Status {
	outcome := game.Outcome()
	if outcome == nchess.NoOutcome || outcome == nchess.UnknownOutcome {
		return Status{}
	}
	return Status{
		Over:   true,
		Reason: strings.ToLower(game.Method().String()),
		Result: string(outcome),
	}
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	trimmed := strings.TrimSpace(fen)
	if trimmed == "" {
		return nil, fmt.Errorf("fen must not be empty")
	}
	option, err := nchess.FEN(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", trimmed, err)
	}
	return nchess.NewGame(option), nil
}
