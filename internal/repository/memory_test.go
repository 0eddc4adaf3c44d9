package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

func TestInMemorySubscriptionRepository_GetByUserID(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.New(logger.ERROR))

	_, err := repo.GetByUserID(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	first := &domain.Subscription{UserID: 1, StripeSubscriptionID: "sub_old", Status: domain.SubscriptionStatusCanceled}
	require.NoError(t, repo.Create(ctx, first))

	second := &domain.Subscription{UserID: 1, StripeSubscriptionID: "sub_new", Status: domain.SubscriptionStatusActive}
	require.NoError(t, repo.Create(ctx, second))

	// Возвращается последняя созданная запись
	latest, err := repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sub_new", latest.StripeSubscriptionID)
}

func TestInMemorySubscriptionRepository_UpdateByStripeID(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.New(logger.ERROR))

	err := repo.UpdateByStripeID(ctx, "sub_missing", domain.SubscriptionSync{Status: domain.SubscriptionStatusActive})
	assert.ErrorIs(t, err, ErrNotFound)

	sub := &domain.Subscription{UserID: 1, StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusIncomplete}
	require.NoError(t, repo.Create(ctx, sub))

	periodEnd := time.Now().UTC().Truncate(time.Second).Add(30 * 24 * time.Hour)
	require.NoError(t, repo.UpdateByStripeID(ctx, "sub_1", domain.SubscriptionSync{
		Status:           domain.SubscriptionStatusActive,
		CurrentPeriodEnd: periodEnd,
	}))

	stored, err := repo.GetByStripeSubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, periodEnd, stored.CurrentPeriodEnd)
}

func TestInMemoryUserRepository_SetStripeIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryUserRepository(logger.New(logger.ERROR))

	user := &domain.User{Name: "A", Email: "a@example.com"}
	require.NoError(t, repo.Create(ctx, user))

	// Только customer ID, подписки еще нет
	require.NoError(t, repo.SetStripeIDs(ctx, user.ID, "cus_1", nil))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_1", *stored.StripeCustomerID)
	assert.Nil(t, stored.StripeSubscriptionID)

	// Дописываем ID подписки, customer сохраняется
	subID := "sub_1"
	require.NoError(t, repo.SetStripeIDs(ctx, user.ID, "cus_1", &subID))

	stored, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *stored.StripeSubscriptionID)
}

func TestInMemoryAPITokenRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAPITokenRepository(logger.New(logger.ERROR))

	token := &domain.APIToken{UserID: 1, Token: "secret-value", Name: "desktop"}
	require.NoError(t, repo.Create(ctx, token))

	found, err := repo.GetByToken(ctx, "secret-value")
	require.NoError(t, err)
	assert.Equal(t, token.ID, found.ID)
	assert.Nil(t, found.LastUsed)

	require.NoError(t, repo.Touch(ctx, token.ID))
	found, err = repo.GetByToken(ctx, "secret-value")
	require.NoError(t, err)
	assert.NotNil(t, found.LastUsed)

	// Чужой userID не удаляет токен
	assert.ErrorIs(t, repo.Delete(ctx, token.ID, 2), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, token.ID, 1))

	_, err = repo.GetByToken(ctx, "secret-value")
	assert.ErrorIs(t, err, ErrNotFound)
}
