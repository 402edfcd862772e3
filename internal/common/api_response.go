package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/models/dtos"
)

func GetResponseTime(init time.Time) string {
	return fmt.Sprintf("%dms", time.Since(init).Milliseconds())
}

// RespondJSON writes body as-is. Endpoint contracts are flat objects, so
// successful responses are not wrapped.
func RespondJSON(w http.ResponseWriter, body any, statusCode ...int) {
	code := http.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}
	writeJSON(w, code, body)
}

// RespondError sends a standardized JSON error response. message is what the
// caller sees; err is only logged.
func RespondError(w http.ResponseWriter, initTime time.Time, err error, message string, statusCode ...int) {
	code := http.StatusInternalServerError
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	if err != nil && code >= http.StatusInternalServerError {
		logging.Error("Request failed", "status_code", code, "message", message, "error", err)
	}

	response := dtos.APIResponse{
		Status:       string(constants.APIStatusError),
		Message:      message,
		ResponseTime: GetResponseTime(initTime),
	}

	writeJSON(w, code, response)
}

// writeJSON marshals data and writes it to the HTTP response.
func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("JSON encode failed", "error", err)
	}
}
