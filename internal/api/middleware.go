/**
 * @description
 * This file contains custom middleware for the HTTP router. The JWT middleware
 * verifies HS256 access tokens issued by the user-facing auth API and places the
 * authenticated user's id into the request context.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For token parsing and validation.
 * - github.com/google/uuid: For user ids.
 */

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const userIDKey UserIDContextKey = "userID"

// JWTAuthMiddleware creates a middleware that validates bearer tokens signed with secret.
// The user id is read from the `id` claim, falling back to `sub`.
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorJSON(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				writeErrorJSON(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				log.Printf("level=warn component=auth msg=\"token rejected\" path=%s err=%v", r.URL.Path, err)
				writeErrorJSON(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			userID, err := userIDFromClaims(claims)
			if err != nil {
				writeErrorJSON(w, http.StatusUnauthorized, "User ID not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFromClaims(claims jwt.MapClaims) (uuid.UUID, error) {
	for _, name := range []string{"id", "sub"} {
		raw, ok := claims[name].(string)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		return uuid.Parse(strings.TrimSpace(raw))
	}
	return uuid.Nil, fmt.Errorf("no user id claim")
}

// GetUserID retrieves the authenticated user's id from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}
