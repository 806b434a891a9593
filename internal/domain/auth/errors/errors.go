package errors

import "errors"

var (
	ErrCredentialInvalid = errors.New("credential rejected by platform")
	ErrCredentialMissing = errors.New("no credential stored")
	ErrCookieTooShort    = errors.New("cookie must be at least 10 characters")
)
