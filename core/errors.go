package core

import "errors"

var (
	ErrInvalidEditType    = errors.New("invalid edit type")
	ErrNoEditablePosition = errors.New("mask has no editable position")
	ErrNoEditType         = errors.New("no edit type left after length guard")
	ErrMaskLength         = errors.New("mask length does not match sequence length")
	ErrOracleMismatch     = errors.New("oracle returned a different number of results")
	ErrEmptyPopulation    = errors.New("population is empty")
)
