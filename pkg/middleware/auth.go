package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/EcommerceGo/pkg/httputil"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// UserIDHeader is set by the gateway, or by trusted clients, to name the
// user a request acts for.
const UserIDHeader = "X-User-ID"

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// Claims are the token claims the services rely on.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// JWTValidator validates HMAC-signed tokens with secret. The user id comes
// from the user_id claim, falling back to sub.
func JWTValidator(secret string) TokenValidator {
	key := []byte(secret)
	return func(tokenString string) (*Claims, error) {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("token is not valid")
		}
		if claims.UserID == "" {
			claims.UserID = claims.Subject
		}
		if claims.UserID == "" {
			return nil, errors.New("token has no user id")
		}
		return claims, nil
	}
}

// IssueToken signs an HS256 token for userID that expires after ttl.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Auth requires a valid bearer token and puts its user id in the context.
// An X-User-ID header that disagrees with the token is rejected.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(token)
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "rejected bearer token",
					"path", r.URL.Path,
					"error", err.Error(),
				)
				writeAuthError(w, "invalid or expired token")
				return
			}

			if h := r.Header.Get(UserIDHeader); h != "" && h != claims.UserID {
				writeAuthError(w, "user id does not match token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// TrustedUserID takes the user id from the X-User-ID header, for services
// that sit behind the gateway which already validated the token.
func TrustedUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(UserIDHeader)
		if uid == "" {
			writeAuthError(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
	})
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
