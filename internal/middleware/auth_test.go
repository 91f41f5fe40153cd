package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"presentation-api/internal/model"
)

type stubVerifier struct {
	claims *model.AuthClaims
	err    error
	called bool
}

func (s *stubVerifier) Verify(tokenString string) (*model.AuthClaims, error) {
	s.called = true
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

type stubLedger struct {
	revoked bool
	err     error
}

func (s *stubLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	return s.revoked, s.err
}

func runAuth(t *testing.T, verifier *stubVerifier, ledger *stubLedger, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		require.NotNil(t, claims)
		token, ok := TokenFromContext(r.Context())
		require.True(t, ok)
		require.NotEmpty(t, token)
	})

	m := NewAuthMiddleware(verifier, ledger)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/presentations/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	rec := httptest.NewRecorder()
	m.RequireAuth(next).ServeHTTP(rec, req)
	return rec, reached
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.APIError {
	t.Helper()

	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	okVerifier := func() *stubVerifier {
		return &stubVerifier{claims: &model.AuthClaims{Subject: "user-1"}}
	}

	t.Run("missing header", func(t *testing.T) {
		rec, reached := runAuth(t, okVerifier(), &stubLedger{}, "")
		require.False(t, reached)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		for _, header := range []string{"tok", "Basic tok", "Bearer a b", "bearer tok"} {
			rec, reached := runAuth(t, okVerifier(), &stubLedger{}, header)
			require.False(t, reached, "header %q should be rejected", header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "MALFORMED_TOKEN", decodeError(t, rec).Code)
		}
	})

	t.Run("valid token passes with claims attached", func(t *testing.T) {
		rec, reached := runAuth(t, okVerifier(), &stubLedger{}, "Bearer good-token")
		require.True(t, reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revoked token is rejected before verification", func(t *testing.T) {
		verifier := okVerifier()
		rec, reached := runAuth(t, verifier, &stubLedger{revoked: true}, "Bearer revoked-token")
		require.False(t, reached)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.False(t, verifier.called, "verification must not run for revoked tokens")
	})

	t.Run("revoked and invalid are indistinguishable", func(t *testing.T) {
		revokedRec, _ := runAuth(t, okVerifier(), &stubLedger{revoked: true}, "Bearer revoked-token")
		invalidRec, _ := runAuth(t, &stubVerifier{err: model.ErrInvalidToken}, &stubLedger{}, "Bearer bad-token")

		require.Equal(t, revokedRec.Code, invalidRec.Code)
		require.Equal(t, decodeError(t, revokedRec), decodeError(t, invalidRec))
	})

	t.Run("ledger failure is a server error", func(t *testing.T) {
		rec, reached := runAuth(t, okVerifier(), &stubLedger{err: errors.New("db down")}, "Bearer tok")
		require.False(t, reached)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireValidToken(t *testing.T) {
	t.Parallel()

	t.Run("revoked token still reaches the handler", func(t *testing.T) {
		verifier := &stubVerifier{claims: &model.AuthClaims{Subject: "user-1"}}

		reached := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			token, ok := TokenFromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, "revoked-token", token)
		})

		m := NewAuthMiddleware(verifier, &stubLedger{revoked: true})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer revoked-token")

		rec := httptest.NewRecorder()
		m.RequireValidToken(next).ServeHTTP(rec, req)

		require.True(t, reached, "logout must see already-revoked tokens")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid token is still rejected", func(t *testing.T) {
		reached := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		})

		m := NewAuthMiddleware(&stubVerifier{err: model.ErrInvalidToken}, &stubLedger{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer bad-token")

		rec := httptest.NewRecorder()
		m.RequireValidToken(next).ServeHTTP(rec, req)

		require.False(t, reached)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
