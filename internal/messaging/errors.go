package messaging

import "errors"

var (
	// ErrValidation marks malformed or unacceptable input.
	ErrValidation = errors.New("validation failed")
	// ErrPermission is returned when the request gate denies a send.
	ErrPermission = errors.New("message request pending")
	// ErrAuthorization is returned when the actor may not act on a resource.
	ErrAuthorization = errors.New("not authorized")
	// ErrState is returned when a request has already been responded to.
	ErrState = errors.New("invalid state")
	ErrNotFound = errors.New("not found")
)
