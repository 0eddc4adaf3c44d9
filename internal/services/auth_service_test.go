package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

func newAuthFixture(t *testing.T) (*AuthService, *repository.InMemoryUserRepository) {
	t.Helper()
	log := logger.New(logger.ERROR)
	users := repository.NewInMemoryUserRepository(log)
	tokens := repository.NewInMemoryAPITokenRepository(log)
	return NewAuthService(users, tokens, "test-secret", log), users
}

func TestSignup(t *testing.T) {
	ctx := context.Background()

	t.Run("registers user and returns valid token", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		user, token, err := svc.Signup(ctx, SignupInput{
			Name:     "Alex",
			Email:    "alex@example.com",
			Password: "correct-horse",
		})
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.NotEqual(t, "correct-horse", user.PasswordHash)
		require.NotEmpty(t, token)

		userID, err := svc.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, userID)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		_, _, err := svc.Signup(ctx, SignupInput{Name: "Alex", Email: "alex@example.com", Password: "correct-horse"})
		require.NoError(t, err)

		_, _, err = svc.Signup(ctx, SignupInput{Name: "Alex 2", Email: "alex@example.com", Password: "other-password"})
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("authenticates with correct credentials", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		created, _, err := svc.Signup(ctx, SignupInput{Name: "Alex", Email: "alex@example.com", Password: "correct-horse"})
		require.NoError(t, err)

		user, token, err := svc.Login(ctx, "alex@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		_, _, err := svc.Signup(ctx, SignupInput{Name: "Alex", Email: "alex@example.com", Password: "correct-horse"})
		require.NoError(t, err)

		_, _, errWrongPassword := svc.Login(ctx, "alex@example.com", "wrong")
		_, _, errUnknownEmail := svc.Login(ctx, "nobody@example.com", "correct-horse")

		assert.ErrorIs(t, errWrongPassword, domain.ErrInvalidCredentials)
		assert.ErrorIs(t, errUnknownEmail, domain.ErrInvalidCredentials)
	})
}

func TestVerifyToken(t *testing.T) {
	t.Run("rejects garbage and foreign tokens", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		_, err := svc.VerifyToken("not-a-jwt")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)

		// Токен с другим секретом
		foreign := NewAuthService(nil, nil, "other-secret", logger.New(logger.ERROR))
		token, err := foreign.IssueToken(42)
		require.NoError(t, err)

		_, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestAPITokens(t *testing.T) {
	ctx := context.Background()

	t.Run("create verify and delete", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, _, err := svc.Signup(ctx, SignupInput{Name: "Alex", Email: "alex@example.com", Password: "correct-horse"})
		require.NoError(t, err)

		token, err := svc.CreateAPIToken(ctx, user.ID, "desktop")
		require.NoError(t, err)
		assert.Len(t, token.Token, 64) // 32 байта в hex

		owner, err := svc.VerifyAPIToken(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, owner.ID)

		// Проверка отметила последнее использование
		tokens, err := svc.ListAPITokens(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.NotNil(t, tokens[0].LastUsed)

		require.NoError(t, svc.DeleteAPIToken(ctx, token.ID, user.ID))

		_, err = svc.VerifyAPIToken(ctx, token.Token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("cannot delete someone else's token", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		owner, _, err := svc.Signup(ctx, SignupInput{Name: "Owner", Email: "owner@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		stranger, _, err := svc.Signup(ctx, SignupInput{Name: "Stranger", Email: "stranger@example.com", Password: "correct-horse"})
		require.NoError(t, err)

		token, err := svc.CreateAPIToken(ctx, owner.ID, "desktop")
		require.NoError(t, err)

		err = svc.DeleteAPIToken(ctx, token.ID, stranger.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown token is unauthenticated", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		_, err := svc.VerifyAPIToken(ctx, "deadbeef")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
