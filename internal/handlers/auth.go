package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"prayer-push-go/internal/auth"
)

type callerKey struct{}

// CallerFrom returns the authenticated caller stored by the auth middleware.
func CallerFrom(ctx context.Context) (auth.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(auth.Caller)
	return c, ok
}

func withCaller(r *http.Request, c auth.Caller) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), callerKey{}, c))
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.Log.WarnContext(r.Context(), "Rejected request",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

// serviceOnly admits the backend's own service credential and nothing else.
func (h *Handler) serviceOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.BearerToken(r.Header.Get("Authorization"))
		caller, err := h.Auth.Service(token)
		if err != nil {
			h.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, withCaller(r, caller))
	})
}

func (h *Handler) serviceOrUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.BearerToken(r.Header.Get("Authorization"))
		caller, err := h.Auth.ServiceOrUser(r.Context(), token)
		if err != nil {
			h.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, withCaller(r, caller))
	})
}

func (h *Handler) userOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.BearerToken(r.Header.Get("Authorization"))
		caller, err := h.Auth.User(r.Context(), token)
		if err != nil {
			h.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, withCaller(r, caller))
	})
}

// streamUser is userOnly that also accepts ?access_token=, since EventSource
// cannot set headers.
func (h *Handler) streamUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			token = r.URL.Query().Get("access_token")
		}
		caller, err := h.Auth.User(r.Context(), token)
		if err != nil {
			h.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, withCaller(r, caller))
	})
}
