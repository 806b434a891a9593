package errors

type baseError struct {
	message string
	cause   error
}

func (e *baseError) Error() string {
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// ValidationError represents a validation error (HTTP 400)
type ValidationError struct {
	baseError
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError{message: message}}
}

// NotFoundError represents a not found error (HTTP 404)
type NotFoundError struct {
	baseError
}

func NewNotFoundError(message string, cause error) *NotFoundError {
	return &NotFoundError{baseError{message: message, cause: cause}}
}

// TooManyRequestsError represents a throttled request (HTTP 429)
type TooManyRequestsError struct {
	baseError
}

func NewTooManyRequestsError(message string, cause error) *TooManyRequestsError {
	return &TooManyRequestsError{baseError{message: message, cause: cause}}
}

// BadGatewayError represents a failure of an upstream dependency (HTTP 502)
type BadGatewayError struct {
	baseError
}

func NewBadGatewayError(message string, cause error) *BadGatewayError {
	return &BadGatewayError{baseError{message: message, cause: cause}}
}

// ServiceUnavailableError represents a service that is shutting down (HTTP 503)
type ServiceUnavailableError struct {
	baseError
}

func NewServiceUnavailableError(message string, cause error) *ServiceUnavailableError {
	return &ServiceUnavailableError{baseError{message: message, cause: cause}}
}

// InternalError represents an internal server error (HTTP 500)
type InternalError struct {
	baseError
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{baseError{message: message, cause: cause}}
}
