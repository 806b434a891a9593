package errors

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Mapper maps domain errors to HTTP status codes
type Mapper struct {
	logger zerolog.Logger
}

// NewMapper creates a new error mapper
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// MapErrorToHTTP maps an error to HTTP status code and message
func (m *Mapper) MapErrorToHTTP(err error) (int, string) {
	if err == nil {
		return fasthttp.StatusOK, ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fasthttp.StatusBadRequest, validationErr.Error()
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return fasthttp.StatusNotFound, notFoundErr.Error()
	}

	var tooManyErr *TooManyRequestsError
	if errors.As(err, &tooManyErr) {
		return fasthttp.StatusTooManyRequests, tooManyErr.Error()
	}

	var badGatewayErr *BadGatewayError
	if errors.As(err, &badGatewayErr) {
		m.logger.Warn().Err(err).Msg("upstream failure")
		return fasthttp.StatusBadGateway, badGatewayErr.Error()
	}

	var unavailableErr *ServiceUnavailableError
	if errors.As(err, &unavailableErr) {
		return fasthttp.StatusServiceUnavailable, unavailableErr.Error()
	}

	var internalErr *InternalError
	if errors.As(err, &internalErr) {
		m.logger.Error().Err(err).Msg("internal server error")
		return fasthttp.StatusInternalServerError, internalErr.Error()
	}

	m.logger.Error().Err(err).Msg("unknown error")
	return fasthttp.StatusInternalServerError, "internal server error"
}
