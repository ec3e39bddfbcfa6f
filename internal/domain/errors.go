package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrZeroVolume          = errors.New("zero volume in window")
	ErrOpenOrder           = errors.New("open order pending")
	ErrExposureCap         = errors.New("exposure cap reached")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrStreamDisconnect    = errors.New("stream disconnected")
	ErrLockHeld            = errors.New("lock already held")
	ErrNoUniverse          = errors.New("no ranked universe for session")
)
