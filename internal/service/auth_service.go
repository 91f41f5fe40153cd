package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"presentation-api/internal/model"
	"presentation-api/pkg/apierror"
)

type userStore interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

type revocationLedger interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type ownedPresentationIndex interface {
	IDsForOwner(ctx context.Context, ownerID string) ([]string, error)
}

type AuthService struct {
	users         userStore
	ledger        revocationLedger
	presentations ownedPresentationIndex
	tokens        *TokenService
}

func NewAuthService(users userStore, ledger revocationLedger, presentations ownedPresentationIndex, tokens *TokenService) *AuthService {
	return &AuthService{users: users, ledger: ledger, presentations: presentations, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, username string, password string) (model.TokenResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.TokenResponse{}, apierror.New("BAD_REQUEST",
			"username and password are required", "", http.StatusBadRequest)
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return model.TokenResponse{}, err
	}
	if exists {
		return model.TokenResponse{}, apierror.New("BAD_REQUEST",
			"username already exists", username, http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return model.TokenResponse{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The existence pre-check races with concurrent registration; the
		// unique index is the authority.
		if err == model.ErrUserAlreadyExists {
			return model.TokenResponse{}, apierror.New("BAD_REQUEST",
				"username already exists", username, http.StatusBadRequest)
		}
		return model.TokenResponse{}, err
	}

	return s.issueToken(user)
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenResponse, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		// Unknown user and wrong password produce the same response.
		return model.TokenResponse{}, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.TokenResponse{}, model.ErrInvalidCredentials
	}

	return s.issueToken(user)
}

// Logout records the bearer token in the revocation ledger so it fails the
// auth gate for the remainder of its natural lifetime. Revoking an
// already-revoked token succeeds, which makes logout idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.ledger.Revoke(ctx, token, time.Now().UTC().Add(s.tokens.TTL()))
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}

	ids, err := s.presentations.IDsForOwner(ctx, user.ID)
	if err != nil {
		return model.PublicUser{}, err
	}

	return model.PublicUser{
		ID:              user.ID,
		Username:        user.Username,
		CreatedAt:       user.CreatedAt,
		PresentationIDs: ids,
	}, nil
}

// StartRevocationSweeper deletes expired ledger entries on an interval until
// the context is cancelled. Expired entries are already invisible to
// IsRevoked; the sweep only keeps the table from growing unbounded.
func (s *AuthService) StartRevocationSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.ledger.DeleteExpired(ctx)
			if err != nil {
				slog.Error("revoked token sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("revoked token sweep", "removed", removed)
			}
		}
	}
}

func (s *AuthService) issueToken(user model.User) (model.TokenResponse, error) {
	token, err := s.tokens.Issue(user.ID, []string{"user"})
	if err != nil {
		return model.TokenResponse{}, err
	}

	return model.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}
