package trainer

import "errors"

var (
	ErrIllegalMove        = errors.New("illegal move for current position")
	ErrSessionTerminal    = errors.New("training position is already decided")
	ErrInvalidFEN         = errors.New("invalid starting position")
	ErrEvaluationFailed   = errors.New("evaluation provider failed")
	ErrOrchestratorClosed = errors.New("evaluation orchestrator is closed")
)
