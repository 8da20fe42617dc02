package ebb

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ebb package.
// Use errors.Is to check: errors.Is(err, ebb.ErrInvalidInput)
var (
	ErrInvalidInput    = errors.New("ebb: invalid input")
	ErrStateCorruption = errors.New("ebb: corrupt state document")

	// The following refine ErrInvalidInput.
	ErrInvalidParameters = fmt.Errorf("%w: parameters out of bounds", ErrInvalidInput)
	ErrClockSkew         = fmt.Errorf("%w: review time precedes last review", ErrInvalidInput)
	ErrUnknownTopic      = fmt.Errorf("%w: unknown topic", ErrInvalidInput)
)
