package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"voicethoughts/internal/identity"
	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/metrics"
	"voicethoughts/pkg/response"
)

var (
	ErrMissingCredential = errors.New("missing or malformed bearer credential")
	ErrInvalidCredential = errors.New("invalid bearer credential")
)

// Verifier resolves a bearer token to the identity it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (identity.Identity, error)
}

// Authenticate extracts the bearer token from the Authorization header and
// verifies it. Every failure wraps ErrMissingCredential or ErrInvalidCredential.
func Authenticate(r *http.Request, v Verifier) (identity.Identity, error) {
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return identity.Identity{}, err
	}
	return verify(r.Context(), v, token)
}

func verify(ctx context.Context, v Verifier, token string) (identity.Identity, error) {
	id, err := v.Verify(ctx, token)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if id.UserID == "" {
		return identity.Identity{}, fmt.Errorf("%w: no subject", ErrInvalidCredential)
	}
	return id, nil
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

// RequireAuth rejects requests without a valid bearer credential before the
// wrapped handler runs. m may be nil.
func RequireAuth(v Verifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return requireAuth(v, m, false)
}

// RequireAuthWS is RequireAuth for websocket handshakes: browsers cannot set
// headers on them, so a ?token= query parameter is accepted as well.
func RequireAuthWS(v Verifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return requireAuth(v, m, true)
}

func requireAuth(v Verifier, m *metrics.Metrics, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				id  identity.Identity
				err error
			)
			if token := r.URL.Query().Get("token"); allowQuery && token != "" {
				id, err = verify(r.Context(), v, token)
			} else {
				id, err = Authenticate(r, v)
			}

			if err != nil {
				if errors.Is(err, ErrMissingCredential) {
					countAuthFailure(m, "missing")
					response.Error(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				countAuthFailure(m, "invalid")
				logger.Sugar.Infof("Rejected token: %v", err)
				response.Error(w, http.StatusUnauthorized, "Invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), id)))
		})
	}
}

func countAuthFailure(m *metrics.Metrics, reason string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(reason).Inc()
	}
}

// JWTVerifier validates Supabase access tokens locally with the project's
// HMAC JWT secret.
type JWTVerifier struct {
	secret   []byte
	audience string
}

func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (identity.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if len(v.secret) == 0 {
			return nil, errors.New("server is not configured to validate JWTs")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return identity.Identity{}, err
	}
	if !token.Valid {
		return identity.Identity{}, errors.New("token is not valid")
	}

	// The 'sub' claim in Supabase JWTs is the auth.users id.
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return identity.Identity{}, errors.New("sub claim is missing or invalid")
	}
	role, _ := claims["role"].(string)

	raw, err := json.Marshal(claims)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("encode claims: %w", err)
	}

	return identity.Identity{UserID: sub, Token: tokenString, Role: role, Claims: raw}, nil
}
