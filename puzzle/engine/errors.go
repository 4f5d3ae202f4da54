package engine

import "errors"

var (
	ErrMalformedGrid   = errors.New("malformed grid")
	ErrMissingAgent    = errors.New("no guard marker in grid")
	ErrDuplicateAgent  = errors.New("more than one guard marker in grid")
	ErrNonTerminating  = errors.New("guard never leaves the grid")
	ErrInvalidObstacle = errors.New("invalid obstacle position")
	ErrInvalidStart    = errors.New("invalid start position")
	ErrUnknownStrategy = errors.New("unknown search strategy")
	ErrInvalidPuzzle   = errors.New("invalid puzzle")
)
