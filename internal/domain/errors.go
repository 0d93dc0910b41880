package domain

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrEndpointNotFound     = errors.New("endpoint not found")
	ErrNoPayload            = errors.New("cannot retry, no payload")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrCircuitOpen          = errors.New("circuit breaker open")
	ErrPreferenceExists     = errors.New("preference already exists")
	ErrPreferenceNotFound   = errors.New("preference not found")
)
