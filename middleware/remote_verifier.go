package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicethoughts/internal/identity"
)

// RemoteVerifier resolves tokens by asking Supabase Auth who they belong to.
// It is used when the JWT secret is not available to the service.
type RemoteVerifier struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewRemoteVerifier(baseURL, anonKey string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type authUser struct {
	ID    string `json:"id"`
	Aud   string `json:"aud"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (identity.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := v.client.Do(req)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return identity.Identity{}, fmt.Errorf("auth status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var user authUser
	if err := json.NewDecoder(res.Body).Decode(&user); err != nil {
		return identity.Identity{}, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return identity.Identity{}, errors.New("auth response has no user id")
	}

	claims, err := json.Marshal(map[string]string{
		"sub":   user.ID,
		"role":  user.Role,
		"aud":   user.Aud,
		"email": user.Email,
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("encode claims: %w", err)
	}

	return identity.Identity{UserID: user.ID, Token: token, Role: user.Role, Claims: claims}, nil
}
