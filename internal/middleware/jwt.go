// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kick-haven/internal/forum"
	"kick-haven/internal/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "kick-haven-api"

	// DefaultTokenTTL applies to tokens minted by GenerateToken.
	DefaultTokenTTL = 24 * time.Hour
)

// Claims represents the JWT claims issued by the identity provider
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens and resolves the caller.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates a signed token for the given user. The service never
// issues tokens itself; this is used by the simulator and tests.
func (a *Authenticator) GenerateToken(userID uuid.UUID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses the token and checks its signature and expiry.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// tokenFromRequest reads the bearer token, falling back to the token query
// parameter used by websocket clients.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Identify attaches the caller's identity when the request carries a valid
// token. Anonymous requests pass through; operations that need a caller
// reject them with their own message.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring invalid token")
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithIdentity(r.Context(), forum.Identity{ID: claims.UserID, Name: claims.Username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that Identify could not resolve.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).IsZero() {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized. Please log in.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity saves the caller in the request context
func WithIdentity(ctx context.Context, id forum.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller, or the zero Identity.
func IdentityFromContext(ctx context.Context) forum.Identity {
	id, _ := ctx.Value(identityKey).(forum.Identity)
	return id
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
