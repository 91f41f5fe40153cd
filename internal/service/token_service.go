package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"presentation-api/internal/model"
)

// TokenService issues and verifies signed session tokens. Tokens are
// self-contained: validity is proven by signature and expiry alone, and early
// invalidation is the revocation ledger's job, not this service's.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) Issue(subject string, roles []string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	})

	return token.SignedString(s.secret)
}

// Verify checks the signature and expiry and decodes the claims. Every
// failure mode (malformed, expired, bad signature, wrong algorithm) collapses
// to model.ErrInvalidToken so callers branch on one condition and clients
// cannot distinguish the cases.
func (s *TokenService) Verify(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, model.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, model.ErrInvalidToken
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}

	claims := &model.AuthClaims{}
	claims.Subject, _ = claimsMap["sub"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)
	if rawRoles, ok := claimsMap["roles"].([]any); ok {
		for _, entry := range rawRoles {
			if role, ok := entry.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}

	if claims.Subject == "" {
		return nil, model.ErrInvalidToken
	}

	return claims, nil
}
