package repository

import "errors"

// Sentinel kinds for store and leaderboard errors.
var (
	ErrNotFound            = errors.New("competitor not found")
	ErrAlreadyExists       = errors.New("competitor already exists")
	ErrInvalidLimit        = errors.New("invalid leaderboard limit")
	ErrNoOpenPeriod        = errors.New("no open period")
	ErrPeriodNotFound      = errors.New("period not found")
	ErrPeriodNotOpen       = errors.New("period is not open")
	ErrPeriodNotProcessing = errors.New("period is not processing")
	ErrEmptyPeriod         = errors.New("period has no comparisons")
)
