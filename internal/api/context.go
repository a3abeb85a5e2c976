package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/larder/internal/validation"
)

// MaxUserIDLength bounds the {user_id} path parameter.
const MaxUserIDLength = 128

// userIDContextKey is the context key for the validated user ID.
type userIDContextKey struct{}

// WithUserID returns a new context with the user ID attached.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext extracts the user ID from the context.
// Returns "" if not present.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

// ValidateUserID checks a user ID taken from the URL.
func ValidateUserID(id string) []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("user_id", id))
	if id != "" {
		c.Add(validation.ValidateUTF8("user_id", id))
		c.Add(validation.ValidateNoNullBytes("user_id", id))
		c.Add(validation.ValidateMaxLength("user_id", id, MaxUserIDLength))
	}
	return c.Errors()
}

// UserMiddleware validates the {user_id} URL parameter and stores it in
// the request context. Invalid IDs get a 422 with field errors.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "user_id")
		if errs := ValidateUserID(id); len(errs) > 0 {
			slog.Debug("invalid user id",
				"component", "api",
				"action", "user_id_rejected",
				"path", r.URL.Path,
			)
			WriteProblemWithErrors(w, r, "Invalid user ID", errs)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}
