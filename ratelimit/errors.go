package ratelimit

import "errors"

// Common errors returned by the ratelimit package.
var (
	// ErrInvalidLimit is returned when a gate is created with a limit below one.
	ErrInvalidLimit = errors.New("concurrency limit must be at least 1")
)
