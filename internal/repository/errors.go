package repository

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrJobNotClaimable = errors.New("job is no longer pending")
	ErrJobNotOwned     = errors.New("job is not held by this worker")
)
