package errors

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Mapper maps handler errors to HTTP status codes
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
	var unauthorizedErr *UnauthorizedError
	var notFoundErr *NotFoundError
	var conflictErr *ConflictError
	var tooManyErr *TooManyRequestsError
	var unavailableErr *ServiceUnavailableError
	var internalErr *InternalError

	switch {
	case errors.As(err, &validationErr):
		return fasthttp.StatusBadRequest, validationErr.Error()
	case errors.As(err, &unauthorizedErr):
		return fasthttp.StatusUnauthorized, unauthorizedErr.Error()
	case errors.As(err, &notFoundErr):
		return fasthttp.StatusNotFound, notFoundErr.Error()
	case errors.As(err, &conflictErr):
		return fasthttp.StatusConflict, conflictErr.Error()
	case errors.As(err, &tooManyErr):
		return fasthttp.StatusTooManyRequests, tooManyErr.Error()
	case errors.As(err, &unavailableErr):
		return fasthttp.StatusServiceUnavailable, unavailableErr.Error()
	case errors.As(err, &internalErr):
		m.logger.Error().Err(err).Msg("internal server error")
		return fasthttp.StatusInternalServerError, internalErr.Error()
	}

	m.logger.Error().Err(err).Msg("unknown error")
	return fasthttp.StatusInternalServerError, "internal server error"
}

// Write maps err and writes the status, setting Retry-After for lockouts
func (m *Mapper) Write(ctx *fasthttp.RequestCtx, err error, write func(*fasthttp.RequestCtx, string, int)) {
	status, message := m.MapErrorToHTTP(err)

	var tooManyErr *TooManyRequestsError
	if errors.As(err, &tooManyErr) && tooManyErr.RetryAfterSeconds > 0 {
		ctx.Response.Header.Set("Retry-After", strconv.Itoa(tooManyErr.RetryAfterSeconds))
	}

	write(ctx, message, status)
}
