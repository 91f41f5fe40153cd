package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"presentation-api/internal/model"
)

type tokenVerifier interface {
	Verify(tokenString string) (*model.AuthClaims, error)
}

type revocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type contextKey string

const (
	authClaimsContextKey contextKey = "auth_claims"
	authTokenContextKey  contextKey = "auth_token"
)

type AuthMiddleware struct {
	verifier tokenVerifier
	ledger   revocationChecker
}

func NewAuthMiddleware(verifier tokenVerifier, ledger revocationChecker) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, ledger: ledger}
}

// RequireAuth authenticates the request from its Bearer token. The revocation
// ledger is consulted before the signature check so a logged-out token is
// rejected while it is still cryptographically valid; both cases produce the
// same response so clients cannot tell revoked from expired.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.authenticate(next, true)
}

// RequireValidToken authenticates like RequireAuth but skips the revocation
// ledger. Logout is routed through it: revocation is the state logout
// establishes, so an already-revoked token must still reach the handler for
// logout to stay idempotent.
func (m *AuthMiddleware) RequireValidToken(next http.Handler) http.Handler {
	return m.authenticate(next, false)
}

func (m *AuthMiddleware) authenticate(next http.Handler, checkLedger bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeReject(w, "UNAUTHORIZED", "authorization token required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeReject(w, "MALFORMED_TOKEN", "malformed authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(parts[1])

		if checkLedger {
			revoked, err := m.ledger.IsRevoked(r.Context(), token)
			if err != nil {
				writeReject(w, "INTERNAL_ERROR", "unexpected server error", http.StatusInternalServerError)
				return
			}
			if revoked {
				writeReject(w, "UNAUTHORIZED", "invalid or expired token", http.StatusUnauthorized)
				return
			}
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			writeReject(w, "UNAUTHORIZED", "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := WithClaims(r.Context(), claims)
		ctx = WithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, authTokenContextKey, token)
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

// TokenFromContext returns the raw bearer token the request authenticated
// with. Logout needs it to feed the revocation ledger.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(authTokenContextKey).(string)
	return token, ok
}

func writeReject(w http.ResponseWriter, code string, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
