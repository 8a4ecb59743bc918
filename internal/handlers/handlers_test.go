package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prayer-push-go/internal/auth"
	"prayer-push-go/internal/logger"
	"prayer-push-go/internal/models"
	"prayer-push-go/internal/push"
	"prayer-push-go/internal/store"
	"prayer-push-go/internal/vapid"
)

const (
	serviceKey = "service-role-key"
	userToken  = "user-session-token"
	userID     = "0f8b6c1e-3d2a-4b5c-9e7f-a1b2c3d4e5f6"
	otherUser  = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type tokens map[string]string

func (t tokens) Verify(_ context.Context, token string) (string, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []push.Request
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req push.Request) (models.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.err != nil {
		return models.DispatchResult{}, d.err
	}
	return models.DispatchResult{
		Success:            true,
		InAppNotifications: len(req.UserIDs),
		PushNotifications:  models.PushReport{Sent: 1, Errors: []string{}},
	}, nil
}

type fakeSweeper struct {
	result models.SweepResult
	err    error
	calls  int
}

func (s *fakeSweeper) Run(context.Context) (models.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

type fixture struct {
	handler    http.Handler
	store      *store.MemoryStore
	dispatcher *fakeDispatcher
	sweeper    *fakeSweeper
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	f := &fixture{
		store:      mem,
		dispatcher: &fakeDispatcher{},
		sweeper:    &fakeSweeper{result: models.SweepResult{Success: true, Sent: 2, PushSent: 1, Time: "06:00:00"}},
	}
	deps := Deps{
		Dispatcher:    f.dispatcher,
		Sweeper:       f.sweeper,
		Subscriptions: mem,
		Servers:       push.ServerFunc(func() *vapid.ApplicationServer { return &vapid.ApplicationServer{PublicKey: "BPublicKey"} }),
		Feed:          mem,
		Auth:          auth.NewAuthenticator(serviceKey, tokens{userToken: userID}),
		Log:           logger.Discard(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.handler = NewHandler(deps).Routes()
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/api/push/send", "/api/push/reminders/run", "/anything"} {
		rec := f.do(http.MethodOptions, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "authorization")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRunReminders(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "service credential", token: serviceKey, wantStatus: http.StatusOK},
		{name: "end user", token: userToken, wantStatus: http.StatusUnauthorized},
		{name: "no token", token: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", token: "service-role-ke", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(http.MethodPost, "/api/push/reminders/run", tt.token, "")

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, map[string]any{"error": "Unauthorized"}, body)
				assert.Equal(t, 0, f.sweeper.calls)
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, float64(2), body["sent"])
			assert.Equal(t, float64(1), body["pushSent"])
			assert.Equal(t, "06:00:00", body["time"])
			assert.NotContains(t, body, "skipped")
		})
	}
}

func TestRunReminders_Failure(t *testing.T) {
	f := newFixture(t, nil)
	f.sweeper.err = errors.New("database unavailable")

	rec := f.do(http.MethodPost, "/api/push/reminders/run", serviceKey, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "database unavailable", decode(t, rec)["error"])
}

func TestSend(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		body        string
		wantStatus  int
		wantTargets []string
	}{
		{
			name:        "service single target",
			token:       serviceKey,
			body:        `{"user_id":"` + userID + `","title":"Culto","body":"Hoje"}`,
			wantStatus:  http.StatusOK,
			wantTargets: []string{userID},
		},
		{
			name:        "user many targets",
			token:       userToken,
			body:        `{"user_id":"` + userID + `","user_ids":["` + otherUser + `"],"title":"t","body":"b"}`,
			wantStatus:  http.StatusOK,
			wantTargets: []string{userID, otherUser},
		},
		{
			name:       "no targets",
			token:      serviceKey,
			body:       `{"title":"t","body":"b"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty target list",
			token:      serviceKey,
			body:       `{"user_ids":[],"title":"t","body":"b"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid user id",
			token:      serviceKey,
			body:       `{"user_id":"not-a-uuid","title":"t","body":"b"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			token:      serviceKey,
			body:       `{"user_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unauthenticated",
			token:      "",
			body:       `{"user_id":"` + userID + `","title":"t","body":"b"}`,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(http.MethodPost, "/api/push/send", tt.token, tt.body)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, decode(t, rec), "error")
				assert.Empty(t, f.dispatcher.requests)
				return
			}
			body := decode(t, rec)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, float64(len(tt.wantTargets)), body["inAppNotifications"])
			assert.Contains(t, body, "pushNotifications")
			require.Len(t, f.dispatcher.requests, 1)
			assert.Equal(t, tt.wantTargets, f.dispatcher.requests[0].UserIDs)
		})
	}
}

func TestSend_PassesOptionalFields(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/push/send", serviceKey,
		`{"user_id":"`+userID+`","title":"t","body":"b","url":"/eventos/1","tag":"evento-1","type":"event"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, push.Request{
		UserIDs: []string{userID},
		Title:   "t",
		Body:    "b",
		URL:     "/eventos/1",
		Tag:     "evento-1",
		Type:    "event",
	}, f.dispatcher.requests[0])
}

func TestSend_RestrictTargets(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.RestrictTargets = true })

	rec := f.do(http.MethodPost, "/api/push/send", userToken, `{"user_id":"`+otherUser+`","title":"t","body":"b"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/push/send", userToken, `{"user_id":"`+userID+`","title":"t","body":"b"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/push/send", serviceKey, `{"user_id":"`+otherUser+`","title":"t","body":"b"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSend_DispatchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatcher.err = errors.New("insert in-app notifications: connection refused")

	rec := f.do(http.MethodPost, "/api/push/send", serviceKey, `{"user_id":"`+userID+`","title":"t","body":"b"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "insert in-app notifications: connection refused", decode(t, rec)["error"])
}

func TestVAPIDPublicKey(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/push/vapid-public-key", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BPublicKey", decode(t, rec)["publicKey"])

	f = newFixture(t, func(d *Deps) {
		d.Servers = push.ServerFunc(func() *vapid.ApplicationServer { return nil })
	})
	rec = f.do(http.MethodGet, "/api/push/vapid-public-key", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	body := `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc","keys":{"p256dh":"BKey","auth":"secret"}}`

	rec := f.do(http.MethodPost, "/api/push/subscriptions", serviceKey, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "service key is not a user")

	rec = f.do(http.MethodPost, "/api/push/subscriptions", userToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode(t, rec)

	refreshed := `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc","keys":{"p256dh":"BNewKey","auth":"new-secret"}}`
	rec = f.do(http.MethodPost, "/api/push/subscriptions", userToken, refreshed)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, first["id"], decode(t, rec)["id"])

	subs, err := f.store.ListForUsers(ctx, []string{userID})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "BNewKey", subs[0].P256dh)

	rec = f.do(http.MethodDelete, "/api/push/subscriptions", userToken, `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	subs, _ = f.store.ListForUsers(ctx, []string{userID})
	assert.Empty(t, subs)
}

func TestSubscribe_Validation(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{
		`{"endpoint":"","keys":{"p256dh":"k","auth":"a"}}`,
		`{"endpoint":"not a url","keys":{"p256dh":"k","auth":"a"}}`,
		`{"endpoint":"https://push.example/x","keys":{"auth":"a"}}`,
		`{"endpoint":"https://push.example/x","keys":{"p256dh":"k"}}`,
		`[]`,
	} {
		rec := f.do(http.MethodPost, "/api/push/subscriptions", userToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := f.do(http.MethodDelete, "/api/push/subscriptions", userToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream?access_token="+userToken, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	inbox := store.WithPublisher(f.store, f.store, logger.Discard())
	_, err = inbox.InsertNotifications(ctx, []models.Notification{
		{UserID: otherUser, Title: "not yours", Type: models.NotificationPush},
		{UserID: userID, Title: "Oração", Message: "Vamos orar", Type: models.NotificationPrayerReminder},
	})
	require.NoError(t, err)

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var n models.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, userID, n.UserID)
	assert.Equal(t, "Oração", n.Title)
}

func TestStream_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/notifications/stream?access_token=bogus", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/notifications/stream", serviceKey, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStream_NoFeed(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Feed = nil })

	rec := f.do(http.MethodGet, "/api/notifications/stream", userToken, "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
