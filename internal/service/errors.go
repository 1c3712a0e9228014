package service

import "errors"

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrEmptyCollection      = errors.New("collection has no media")
	ErrDailyLimitExceeded   = errors.New("daily posting limit exceeded")
	ErrNoActiveCredential   = errors.New("no active post-bridge api key")
	ErrInvalidStartDate     = errors.New("invalid start date")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrStorageNotConfigured = errors.New("storage not configured")
)
