package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
)

type principalKey struct{}

// AdminClaims are the claims carried by admin bearer tokens. The subject is
// recorded as the reviewer or actor of admin actions.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Principal struct {
	UserID string
	Role   string
}

func IssueAdminToken(secret string, userID string, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret is required")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func ParseAdminToken(tokenStr string, secret string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorOf(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return p.UserID
	}
	return ""
}

// requireAdmin rejects requests without a valid admin token before any
// handler runs. Browsers cannot set headers on websocket upgrades, so the
// token is also accepted from the access_token query parameter there.
func requireAdmin(secret string, roles []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" && isWebsocketUpgrade(r) {
				tokenStr = strings.TrimSpace(r.URL.Query().Get("access_token"))
			}
			if tokenStr == "" {
				writeError(w, r, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized))
				return
			}
			if strings.TrimSpace(secret) == "" {
				writeError(w, r, fmt.Errorf("%w: admin auth is not configured", domain.ErrUnauthorized))
				return
			}

			claims, err := ParseAdminToken(tokenStr, secret)
			if err != nil {
				logging.Warn(r.Context(), "admin token rejected", slog.String("reason", err.Error()))
				writeError(w, r, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized))
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeError(w, r, fmt.Errorf("%w: role %q may not moderate", domain.ErrForbidden, claims.Role))
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, Principal{UserID: claims.Subject, Role: claims.Role})
			ctx = logging.WithAttrs(ctx, slog.String("actor", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireBearerSecret guards machine endpoints with a shared secret. An empty
// configured secret rejects every request.
func requireBearerSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(bearerToken(r))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, r, fmt.Errorf("%w: invalid bearer secret", domain.ErrUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
