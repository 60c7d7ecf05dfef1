package service

import "errors"

var (
	ErrMissingTaxID      = errors.New("tax id is required")
	ErrEmptyContribution = errors.New("contribution has no valid lines")
	ErrEmptyDistribution = errors.New("distribution has no lines")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrUnknownStatus     = errors.New("unknown contribution status")
)
