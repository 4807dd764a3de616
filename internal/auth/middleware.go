package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderIdentity carries the caller identity asserted by a trusted gateway.
const HeaderIdentity = "X-Ledger-Identity"

// maxBodyBytes bounds how much of a request body is buffered for signing.
const maxBodyBytes = 1 << 20

// GatewayAuthenticator trusts an upstream gateway that has already
// authenticated the user. The gateway proves itself with a shared API key
// (Bearer token or X-API-Key) and names the caller in X-Ledger-Identity.
type GatewayAuthenticator struct {
	apiKey string
}

// NewGatewayAuthenticator creates a gateway authenticator. apiKey must be
// non-empty.
func NewGatewayAuthenticator(apiKey string) *GatewayAuthenticator {
	return &GatewayAuthenticator{apiKey: apiKey}
}

// Authenticate implements Authenticator.
func (g *GatewayAuthenticator) Authenticate(r *http.Request, _ []byte) (string, error) {
	token := extractToken(r)
	if token == "" {
		return "", fmt.Errorf("%w: missing gateway token", ErrUnauthenticated)
	}
	// Constant-time comparison to prevent timing attacks.
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.apiKey)) != 1 {
		return "", fmt.Errorf("%w: invalid gateway token", ErrUnauthenticated)
	}
	id := strings.TrimSpace(r.Header.Get(HeaderIdentity))
	if id == "" {
		return "", fmt.Errorf("%w: missing %s", ErrUnauthenticated, HeaderIdentity)
	}
	return id, nil
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Middleware authenticates every request with a and stores the caller
// identity in the request context. The body is buffered and restored so
// handlers can decode it after signature verification.
func Middleware(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
				if err != nil {
					writeUnauthorized(w, "unreadable request body")
					return
				}
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			identity, err := a.Authenticate(r, body)
			if err != nil {
				logger.InfoContext(r.Context(), "authentication rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				msg := "authentication failed"
				if errors.Is(err, ErrUnauthenticated) {
					msg = strings.TrimPrefix(err.Error(), ErrUnauthenticated.Error()+": ")
				}
				writeUnauthorized(w, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), identity)))
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": "Unauthenticated"})
}
