package repository

import (
	"context"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Create сохраняет подписку в БД и кеширует ее
func (r *CachedSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	// Сначала сохраняем в основное хранилище
	if err := r.repo.Create(ctx, sub); err != nil {
		return err
	}

	// Затем кешируем подписку
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after creation", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
		// Продолжаем выполнение, несмотря на ошибку кеширования
	}

	// Инвалидируем кеш подписки пользователя
	if err := r.cache.InvalidateUserSubscriptionCache(ctx, sub.UserID); err != nil {
		r.log.Warnw("Failed to invalidate user subscription cache", "error", err, "userID", sub.UserID)
	}

	return nil
}

// GetByUserID возвращает текущую подписку пользователя (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Subscription, error) {
	// Пытаемся получить из кеша
	cachedSub, err := r.cache.GetCachedUserSubscription(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting user subscription from cache", "error", err, "userID", userID)
		// Продолжаем выполнение при ошибке кеша
	}

	// Если нашли в кеше, возвращаем
	if cachedSub != nil {
		r.log.Debugw("User subscription found in cache", "userID", userID)
		return cachedSub, nil
	}

	// Если не нашли в кеше, ищем в БД
	sub, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Кешируем найденную подписку
	if err := r.cache.CacheUserSubscription(ctx, userID, sub); err != nil {
		r.log.Warnw("Failed to cache user subscription after fetching", "error", err, "userID", userID)
	}

	return sub, nil
}

// GetByStripeSubscriptionID получает подписку по внешнему ID (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	// Пытаемся получить из кеша
	cachedSub, err := r.cache.GetCachedSubscription(ctx, stripeSubID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "stripeSubscriptionID", stripeSubID)
		// Продолжаем выполнение при ошибке кеша
	}

	// Если нашли в кеше, возвращаем
	if cachedSub != nil {
		r.log.Debugw("Subscription found in cache", "stripeSubscriptionID", stripeSubID)
		return cachedSub, nil
	}

	// Если не нашли в кеше, ищем в БД
	sub, err := r.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		return nil, err
	}

	// Кешируем найденную подписку
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "stripeSubscriptionID", stripeSubID)
	}

	return sub, nil
}

// Update обновляет подписку в БД и кеше
func (r *CachedSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	// Сначала обновляем в основном хранилище
	if err := r.repo.Update(ctx, sub); err != nil {
		return err
	}

	// Обновляем кеш подписки
	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to update subscription in cache", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
	}

	// Инвалидируем кеш подписки пользователя
	if err := r.cache.InvalidateUserSubscriptionCache(ctx, sub.UserID); err != nil {
		r.log.Warnw("Failed to invalidate user subscription cache after update", "error", err, "userID", sub.UserID)
	}

	return nil
}

// UpdateByStripeID перезаписывает синхронизируемые поля и сбрасывает кеш
func (r *CachedSubscriptionRepository) UpdateByStripeID(ctx context.Context, stripeSubID string, sync domain.SubscriptionSync) error {
	if err := r.repo.UpdateByStripeID(ctx, stripeSubID, sync); err != nil {
		return err
	}

	r.invalidateByStripeID(ctx, stripeSubID)
	return nil
}

// SetStatusByStripeID меняет статус и сбрасывает кеш
func (r *CachedSubscriptionRepository) SetStatusByStripeID(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error {
	if err := r.repo.SetStatusByStripeID(ctx, stripeSubID, status); err != nil {
		return err
	}

	r.invalidateByStripeID(ctx, stripeSubID)
	return nil
}

// invalidateByStripeID сбрасывает оба ключа кеша для подписки.
// Запись в кеше может быть устаревшей, поэтому userID берем из БД.
func (r *CachedSubscriptionRepository) invalidateByStripeID(ctx context.Context, stripeSubID string) {
	if err := r.cache.DeleteCachedSubscription(ctx, stripeSubID); err != nil {
		r.log.Warnw("Failed to delete subscription from cache", "error", err, "stripeSubscriptionID", stripeSubID)
	}

	sub, err := r.repo.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		r.log.Warnw("Failed to resolve subscription owner for cache invalidation", "error", err, "stripeSubscriptionID", stripeSubID)
		return
	}

	if err := r.cache.InvalidateUserSubscriptionCache(ctx, sub.UserID); err != nil {
		r.log.Warnw("Failed to invalidate user subscription cache", "error", err, "userID", sub.UserID)
	}
}
