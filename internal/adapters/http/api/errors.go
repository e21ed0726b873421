package api

import (
	"errors"
	"net/http"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/matchmake"
)

// ErrBadRequest marks request bodies and parameters the handlers reject
// before touching the service.
var ErrBadRequest = errors.New("bad request")

// statusFor translates service-layer sentinels into an HTTP status and a
// machine-readable error code. Anything unrecognized is a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, matchmake.ErrNotEnoughCandidates):
		return http.StatusConflict, "not_enough_competitors"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError maps err through statusFor and writes the uniform
// error body.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
