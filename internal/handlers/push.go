package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"prayer-push-go/internal/models"
	"prayer-push-go/internal/push"
)

type sendRequest struct {
	UserID  string   `json:"user_id"`
	UserIDs []string `json:"user_ids"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	URL     string   `json:"url"`
	Tag     string   `json:"tag"`
	Type    string   `json:"type"`
}

func (req sendRequest) targets() []string {
	targets := make([]string, 0, len(req.UserIDs)+1)
	if req.UserID != "" {
		targets = append(targets, req.UserID)
	}
	for _, id := range req.UserIDs {
		if id != "" {
			targets = append(targets, id)
		}
	}
	return targets
}

// Send stores an in-app notification for every target and pushes it to
// their devices.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	targets := req.targets()
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, "user_id or user_ids is required")
		return
	}
	for _, id := range targets {
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user id: "+id)
			return
		}
	}

	caller, _ := CallerFrom(r.Context())
	if h.RestrictTargets && !caller.Service {
		for _, id := range targets {
			if !strings.EqualFold(id, caller.UserID) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
		}
	}

	result, err := h.Dispatcher.Dispatch(r.Context(), push.Request{
		UserIDs: targets,
		Title:   req.Title,
		Body:    req.Body,
		URL:     req.URL,
		Tag:     req.Tag,
		Type:    req.Type,
	})
	if errors.Is(err, push.ErrNoTargets) {
		writeError(w, http.StatusBadRequest, "user_id or user_ids is required")
		return
	}
	if err != nil {
		h.Log.ErrorContext(r.Context(), "Push send failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RunReminders is the once-a-minute sweep trigger.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.Sweeper.Run(r.Context())
	if err != nil {
		h.Log.ErrorContext(r.Context(), "Reminder sweep failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VAPIDPublicKey hands the browser the applicationServerKey to subscribe with.
func (h *Handler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	server := h.Servers.Get()
	if server == nil {
		writeError(w, http.StatusServiceUnavailable, "Push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": server.PublicKey})
}

// subscriptionRequest is the browser's PushSubscription.toJSON().
type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func validEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEndpoint(req.Endpoint) || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, keys.p256dh and keys.auth are required")
		return
	}

	saved, err := h.Subscriptions.ReplaceForUser(r.Context(), caller.UserID, models.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		h.Log.ErrorContext(r.Context(), "Failed to save subscription",
			slog.String("user_id", caller.UserID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to save subscription")
		return
	}

	h.Log.InfoContext(r.Context(), "Push subscription saved",
		slog.String("user_id", caller.UserID), slog.String("subscription_id", saved.ID))
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.Subscriptions.RemoveByEndpoint(r.Context(), caller.UserID, req.Endpoint); err != nil {
		h.Log.ErrorContext(r.Context(), "Failed to remove subscription",
			slog.String("user_id", caller.UserID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
