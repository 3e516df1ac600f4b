package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicethoughts/internal/identity"
	"voicethoughts/pkg/metrics"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  sub,
		"aud":  "authenticated",
		"role": "authenticated",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

type stubVerifier struct {
	id    identity.Identity
	err   error
	calls int
}

func (s *stubVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	s.calls++
	if s.err != nil {
		return identity.Identity{}, s.err
	}
	id := s.id
	id.Token = token
	return id, nil
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Bearer   abc  ", want: "abc", ok: true},
		{header: "", ok: false},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic dXNlcjpwYXNz", ok: false},
		{header: "abc", ok: false},
	}
	for _, tt := range tests {
		got, err := bearerToken(tt.header)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrMissingCredential, "header %q", tt.header)
			continue
		}
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	v := &stubVerifier{id: identity.Identity{UserID: "u1"}}
	m := metrics.New("test")
	called := false
	h := RequireAuth(v, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication required"}`, rec.Body.String())
	assert.False(t, called)
	assert.Zero(t, v.calls, "verifier must not be consulted without a credential")
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	v := &stubVerifier{err: errors.New("expired")}
	called := false
	h := RequireAuth(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/records", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid authentication token"}`, rec.Body.String())
	assert.False(t, called)
}

func TestRequireAuthIgnoresQueryTokenOutsideWebsocket(t *testing.T) {
	v := &stubVerifier{id: identity.Identity{UserID: "u1"}}
	h := RequireAuth(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records?token=abc", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, v.calls)
}

func TestRequireAuthWSAcceptsQueryToken(t *testing.T) {
	v := &stubVerifier{id: identity.Identity{UserID: "u1"}}
	var got identity.Identity
	h := RequireAuthWS(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = identity.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "abc", got.Token)
}

func TestRequireAuthPassesIdentity(t *testing.T) {
	v := NewJWTVerifier(testSecret, "authenticated")
	token := signToken(t, testSecret, validClaims("user-123"))

	var got identity.Identity
	h := RequireAuth(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = identity.FromContext(r.Context())
		require.True(t, ok)
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", got.UserID)
	assert.Equal(t, token, got.Token)
	assert.Equal(t, "authenticated", got.Role)

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Claims, &claims))
	assert.Equal(t, "user-123", claims["sub"])
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "authenticated")

	expired := validClaims("u")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongAud := validClaims("u")
	wrongAud["aud"] = "anon"

	noSub := validClaims("u")
	delete(noSub, "sub")

	noExp := validClaims("u")
	delete(noExp, "exp")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("u")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      signToken(t, testSecret, expired),
		"wrong secret": signToken(t, "another-secret-another-secret-another", validClaims("u")),
		"wrong aud":    signToken(t, testSecret, wrongAud),
		"no sub":       signToken(t, testSecret, noSub),
		"no exp":       signToken(t, testSecret, noExp),
		"alg none":     none,
		"garbage":      "not.a.jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func TestAuthenticateWrapsVerifierErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer x")

	_, err := Authenticate(req, &stubVerifier{err: errors.New("network down")})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = Authenticate(req, &stubVerifier{id: identity.Identity{}})
	assert.ErrorIs(t, err, ErrInvalidCredential, "a verifier that resolves no user is a failure")
}
