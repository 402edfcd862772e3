package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/services"
)

const maxRequestBody = 1 << 20

// decodeBody reads a JSON request body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, initTime time.Time, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondError(w, initTime, err, constants.MsgInvalidRequestBody, http.StatusBadRequest)
		return false
	}
	return true
}

// errorMessages overrides the caller-facing text per outcome for one endpoint.
type errorMessages map[error]string

// respondServiceError maps a service outcome onto an HTTP status.
func respondServiceError(w http.ResponseWriter, initTime time.Time, err error, msgs errorMessages) {
	status, sentinel := statusFor(err)
	message, ok := msgs[sentinel]
	if !ok {
		message = constants.MsgStoreFailure
	}
	common.RespondError(w, initTime, err, message, status)
}

func statusFor(err error) (int, error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, services.ErrNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, services.ErrConflict
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusBadRequest, services.ErrInvalidState
	case errors.Is(err, services.ErrInvalidCredential):
		return http.StatusNotFound, services.ErrInvalidCredential
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, services.ErrUnauthorized
	case errors.Is(err, services.ErrLockUnavailable):
		return http.StatusServiceUnavailable, services.ErrLockUnavailable
	case errors.Is(err, services.ErrPersistence):
		return http.StatusInternalServerError, services.ErrPersistence
	default:
		return http.StatusInternalServerError, nil
	}
}
