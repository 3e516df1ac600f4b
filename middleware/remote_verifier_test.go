package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"user-9","aud":"authenticated","role":"authenticated","email":"a@example.com"}`))
	}))
	defer srv.Close()

	v := NewRemoteVerifier(srv.URL+"/", "anon-key", time.Second)

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-9", id.UserID)
	assert.Equal(t, "good", id.Token)
	assert.Equal(t, "authenticated", id.Role)

	var claims map[string]string
	require.NoError(t, json.Unmarshal(id.Claims, &claims))
	assert.Equal(t, "user-9", claims["sub"])
	assert.Equal(t, "a@example.com", claims["email"])

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorContains(t, err, "auth status 401")
}

func TestRemoteVerifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewRemoteVerifier(url, "anon", time.Second).Verify(context.Background(), "tok")
	assert.Error(t, err)
}

func TestRemoteVerifierEmptyUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewRemoteVerifier(srv.URL, "anon", time.Second).Verify(context.Background(), "tok")
	assert.ErrorContains(t, err, "no user id")
}
