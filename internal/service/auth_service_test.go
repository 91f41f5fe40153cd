package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"presentation-api/internal/model"
	"presentation-api/pkg/apierror"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, u model.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (model.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	args := m.Called(ctx, token, expiresAt)
	return args.Error(0)
}

func (m *mockLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockPresentationIndex struct {
	mock.Mock
}

func (m *mockPresentationIndex) IDsForOwner(ctx context.Context, ownerID string) ([]string, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]string), args.Error(1)
}

func newAuthService(users *mockUserStore, ledger *mockLedger, index *mockPresentationIndex) *AuthService {
	return NewAuthService(users, ledger, index, NewTokenService("test-secret", time.Hour))
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("creates the user and returns a token", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("ExistsByUsername", mock.Anything, "alice").Return(false, nil)
		users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			if u.ID == "" || u.Username != "alice" {
				return false
			}
			return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")) == nil
		})).Return(nil)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		tokens, err := svc.Register(context.Background(), "alice", "s3cret")
		require.NoError(t, err)
		require.NotEmpty(t, tokens.Token)
		require.Equal(t, "Bearer", tokens.TokenType)
		require.Equal(t, int64(3600), tokens.ExpiresIn)
		users.AssertExpectations(t)
	})

	t.Run("rejects blank credentials", func(t *testing.T) {
		svc := newAuthService(new(mockUserStore), new(mockLedger), new(mockPresentationIndex))

		_, err := svc.Register(context.Background(), "  ", "pw")
		require.Error(t, err)

		_, err = svc.Register(context.Background(), "alice", "")
		require.Error(t, err)
	})

	t.Run("rejects a taken username", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("ExistsByUsername", mock.Anything, "alice").Return(true, nil)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		_, err := svc.Register(context.Background(), "alice", "s3cret")
		require.Error(t, err)

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 400, apiErr.HTTPStatus)
	})

	t.Run("maps a create race to the same rejection", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("ExistsByUsername", mock.Anything, "alice").Return(false, nil)
		users.On("Create", mock.Anything, mock.Anything).Return(model.ErrUserAlreadyExists)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		_, err := svc.Register(context.Background(), "alice", "s3cret")
		require.Error(t, err)

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 400, apiErr.HTTPStatus)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	stored := model.User{ID: "user-1", Username: "alice", PasswordHash: string(hash)}

	t.Run("returns a token for valid credentials", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("FindByUsername", mock.Anything, "alice").Return(stored, nil)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		tokens, err := svc.Login(context.Background(), "alice", "s3cret")
		require.NoError(t, err)
		require.NotEmpty(t, tokens.Token)
	})

	t.Run("unknown user and wrong password fail identically", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("FindByUsername", mock.Anything, "bob").Return(model.User{}, model.ErrUserNotFound)
		users.On("FindByUsername", mock.Anything, "alice").Return(stored, nil)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		_, unknownErr := svc.Login(context.Background(), "bob", "whatever")
		_, wrongErr := svc.Login(context.Background(), "alice", "wrong")

		require.ErrorIs(t, unknownErr, model.ErrInvalidCredentials)
		require.ErrorIs(t, wrongErr, model.ErrInvalidCredentials)
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ledger := new(mockLedger)
	ledger.On("Revoke", mock.Anything, "the-token", mock.MatchedBy(func(expires time.Time) bool {
		// The ledger entry must outlive the token's own expiry.
		return expires.After(time.Now().Add(59 * time.Minute))
	})).Return(nil)

	svc := newAuthService(new(mockUserStore), ledger, new(mockPresentationIndex))

	require.NoError(t, svc.Logout(context.Background(), "the-token"))
	ledger.AssertExpectations(t)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	t.Run("includes owned presentation ids", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("FindByID", mock.Anything, "user-1").Return(model.User{ID: "user-1", Username: "alice"}, nil)

		index := new(mockPresentationIndex)
		index.On("IDsForOwner", mock.Anything, "user-1").Return([]string{"p-1", "p-2"}, nil)

		svc := newAuthService(users, new(mockLedger), index)

		user, err := svc.CurrentUser(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, "alice", user.Username)
		require.Equal(t, []string{"p-1", "p-2"}, user.PresentationIDs)
	})

	t.Run("propagates a missing user", func(t *testing.T) {
		users := new(mockUserStore)
		users.On("FindByID", mock.Anything, "ghost").Return(model.User{}, model.ErrUserNotFound)

		svc := newAuthService(users, new(mockLedger), new(mockPresentationIndex))

		_, err := svc.CurrentUser(context.Background(), "ghost")
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}
