package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"

	// Messaging domain errors
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeMessageRequestPending = "MESSAGE_REQUEST_PENDING"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeInvalidState          = "INVALID_STATE"
)
