package engine

import "errors"

// ErrInvalidState is returned when an operation is attempted against an
// engine lifecycle state that forbids it (e.g. a second Run call).
var ErrInvalidState = errors.New("engine: invalid state for operation")

// ErrValidation is returned for builder/construction-time contract
// violations (missing task, malformed config, etc.).
var ErrValidation = errors.New("engine: validation failed")
