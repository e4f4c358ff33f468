package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("generation timed out")
	ErrJobFailed          = errors.New("generation failed")
	ErrGenerationBusy     = errors.New("generation already in flight")
	ErrInvariantViolation = errors.New("version invariant violated")
)
