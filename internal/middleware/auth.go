package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"spacewh/mis/internal/auth"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/services"
)

// AdminBasicAuth guards /admin routes with HTTP Basic credentials. Both
// fields are always compared so timing does not reveal which one was wrong.
func AdminBasicAuth(username, password string) func(http.Handler) http.Handler {
	wantUser := []byte(username)
	wantPass := []byte(password)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1

			if !ok || !userOK || !passOK {
				logging.Warn("Unauthorized attempt to access admin endpoint", "path", r.URL.Path, "client_ip", clientIP(r))
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				common.RespondError(w, time.Now(), services.ErrUnauthorized, constants.MsgBadCredentials, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.SetAdminUser(r.Context(), user)))
		})
	}
}

// OptionalBearer resolves "Authorization: Bearer <membership key>" into an
// identity on the request context. Missing or invalid keys leave the request
// anonymous; a store failure during the lookup fails the request.
func OptionalBearer(validator services.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := validator.Validate(r.Context(), key)
			switch {
			case err == nil:
				r = r.WithContext(auth.SetIdentity(r.Context(), identity))
			case errors.Is(err, services.ErrInvalidCredential):
				logging.Debug("Bearer key not recognised, continuing anonymously")
			default:
				common.RespondError(w, time.Now(), err, constants.MsgStoreFailure, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
