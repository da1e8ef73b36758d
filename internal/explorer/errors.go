package explorer

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownNode     = errors.New("unknown node")
	ErrNotRendered     = errors.New("element is not on the canvas")
)
