package game

import "errors"

// Domain errors. Every one of these is recovered at the session boundary and turned
// into a single "error" event to the requesting connection; none of them crashes a
// room or reaches other subscribers.
var (
	ErrValidation     = errors.New("invalid request")
	ErrNotFound       = errors.New("game not found")
	ErrAuthorization  = errors.New("not authorized")
	ErrConflict       = errors.New("seat already taken")
	ErrInvalidState   = errors.New("action not valid in the current game state")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNoPendingOffer = errors.New("no pending draw offer")
	ErrNotAITurn      = errors.New("not the engine's turn")
	ErrGameFinished   = errors.New("game already finished")
	ErrStorage        = errors.New("storage failure")
)
