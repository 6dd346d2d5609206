package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tinychat/server/internal/api/middleware"
	"github.com/tinychat/server/internal/api/problem"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/domain/guilds"
	"github.com/tinychat/server/internal/domain/users"
	"github.com/tinychat/server/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var errEmptyBody = errors.New("request body is empty")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}

// decodeBody reads one JSON object into dst and runs its validate tags.
// It writes the problem response itself and reports whether to continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Payload too large", err, env)
		case errors.Is(err, io.EOF):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", errEmptyBody, env)
		default:
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", fmt.Errorf("decode body: %w", err), env)
		}
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env,
				problem.WithErrors(validationDetails(fieldErrs)))
			return false
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env)
		return false
	}
	return true
}

func validationDetails(errs validator.ValidationErrors) map[string]interface{} {
	out := make(map[string]interface{}, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			out[field] = fe.Tag() + "=" + fe.Param()
		} else {
			out[field] = fe.Tag()
		}
	}
	return out
}

// currentUser returns the caller placed on the context by RequireAuth.
func currentUser(w http.ResponseWriter, r *http.Request) (*storage.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		problem.Unauthorized(w, r)
		return nil, false
	}
	return user, true
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		problem.Unauthorized(w, r)
	case errors.Is(err, auth.ErrUnavailable):
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Service unavailable", err, env)
	case errors.Is(err, users.ErrEmailTaken),
		errors.Is(err, users.ErrUsernameExhausted),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, guilds.ErrInvalidName),
		errors.Is(err, guilds.ErrInvalidMaxAge):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env, problem.WithDetail(err.Error()))
	case errors.Is(err, guilds.ErrNotOwner), errors.Is(err, guilds.ErrNotMember):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env, problem.WithDetail(err.Error()))
	case errors.Is(err, guilds.ErrAlreadyMember):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, env, problem.WithDetail(err.Error()))
	case errors.Is(err, guilds.ErrGuildNotFound),
		errors.Is(err, guilds.ErrChannelNotFound),
		errors.Is(err, guilds.ErrInviteNotFound),
		errors.Is(err, storage.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env, problem.WithDetail(err.Error()))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}
