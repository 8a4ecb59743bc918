package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prayer-push-go/internal/auth"
	"prayer-push-go/internal/models"
	"prayer-push-go/internal/push"
	"prayer-push-go/internal/store"
)

// Dispatcher is the ad-hoc send path.
type Dispatcher interface {
	Dispatch(ctx context.Context, req push.Request) (models.DispatchResult, error)
}

// Sweeper runs one reminder sweep.
type Sweeper interface {
	Run(ctx context.Context) (models.SweepResult, error)
}

// Deps wires a Handler. Feed may be nil, in which case the stream endpoint
// answers 503.
type Deps struct {
	Dispatcher      Dispatcher
	Sweeper         Sweeper
	Subscriptions   store.SubscriptionStore
	Servers         push.ServerProvider
	Feed            store.Feed
	Auth            *auth.Authenticator
	RestrictTargets bool
	Log             *slog.Logger
}

type Handler struct {
	Deps
	keepAlive time.Duration
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, keepAlive: 25 * time.Second}
}

// Routes builds the HTTP surface.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/push", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/vapid-public-key", h.VAPIDPublicKey)
		r.With(h.serviceOnly).Post("/reminders/run", h.RunReminders)
		r.With(h.serviceOrUser).Post("/send", h.Send)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(h.userOnly)
			r.Post("/", h.Subscribe)
			r.Delete("/", h.Unsubscribe)
		})
	})

	r.With(h.streamUser).Get("/api/notifications/stream", h.Stream)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
