// Package auth identifies callers: the backend's own service credential or an
// end user holding a bearer token issued by the hosted identity provider.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Caller is who made a request. Service is set for the service credential;
// otherwise UserID holds the end user's id.
type Caller struct {
	Service bool
	UserID  string
}

// TokenVerifier turns an end-user bearer token into a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticator checks bearer tokens against the service key and, when a
// verifier is configured, against end-user sessions.
type Authenticator struct {
	serviceKey string
	users      TokenVerifier
}

func NewAuthenticator(serviceKey string, users TokenVerifier) *Authenticator {
	return &Authenticator{serviceKey: serviceKey, users: users}
}

// IsService reports whether token is exactly the service credential.
func (a *Authenticator) IsService(token string) bool {
	if a.serviceKey == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.serviceKey)) == 1
}

// Service accepts only the service credential.
func (a *Authenticator) Service(token string) (Caller, error) {
	if !a.IsService(token) {
		return Caller{}, ErrUnauthorized
	}
	return Caller{Service: true}, nil
}

// User accepts only end-user tokens.
func (a *Authenticator) User(ctx context.Context, token string) (Caller, error) {
	if token == "" || a.users == nil {
		return Caller{}, ErrUnauthorized
	}
	userID, err := a.users.Verify(ctx, token)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Caller{UserID: userID}, nil
}

// ServiceOrUser accepts either.
func (a *Authenticator) ServiceOrUser(ctx context.Context, token string) (Caller, error) {
	if a.IsService(token) {
		return Caller{Service: true}, nil
	}
	return a.User(ctx, token)
}

// JWTVerifier validates HS256 access tokens locally with the project's JWT
// secret. The subject claim is the user id.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	return subjectUserID(claims.Subject)
}

// IdentityVerifier asks the hosted identity provider who owns a token.
type IdentityVerifier struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewIdentityVerifier(baseURL, anonKey string, client *http.Client) *IdentityVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IdentityVerifier{baseURL: strings.TrimRight(baseURL, "/"), anonKey: anonKey, client: client}
}

func (v *IdentityVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.anonKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("identity provider responded %d", resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("decode identity: %w", err)
	}
	return subjectUserID(user.ID)
}

func subjectUserID(sub string) (string, error) {
	id, err := uuid.Parse(sub)
	if err != nil {
		return "", fmt.Errorf("subject is not a user id: %w", err)
	}
	return id.String(), nil
}
