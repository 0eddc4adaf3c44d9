package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	subscriptionKeyPrefix     = "subscription:"
	userSubscriptionKeyPrefix = "user_subscription:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование подписок с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheSubscription кеширует подписку по внешнему ID Stripe
func (r *RedisCacheRepository) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	key := fmt.Sprintf("%s%s", subscriptionKeyPrefix, sub.StripeSubscriptionID)

	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal subscription for caching", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "stripeSubscriptionID", sub.StripeSubscriptionID)
	return nil
}

// GetCachedSubscription получает подписку из кеша по внешнему ID Stripe
func (r *RedisCacheRepository) GetCachedSubscription(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	key := fmt.Sprintf("%s%s", subscriptionKeyPrefix, stripeSubID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Ключ не найден в кеше
			r.log.Debugw("Subscription not found in cache", "stripeSubscriptionID", stripeSubID)
			return nil, nil // Возвращаем nil вместо ошибки
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "stripeSubscriptionID", stripeSubID)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached subscription", "error", err, "stripeSubscriptionID", stripeSubID)
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	r.log.Debugw("Subscription retrieved from cache", "stripeSubscriptionID", stripeSubID)
	return &sub, nil
}

// DeleteCachedSubscription удаляет подписку из кеша
func (r *RedisCacheRepository) DeleteCachedSubscription(ctx context.Context, stripeSubID string) error {
	key := fmt.Sprintf("%s%s", subscriptionKeyPrefix, stripeSubID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete subscription from cache", "error", err, "stripeSubscriptionID", stripeSubID)
		return fmt.Errorf("failed to delete subscription from cache: %w", err)
	}

	r.log.Debugw("Subscription deleted from cache", "stripeSubscriptionID", stripeSubID)
	return nil
}

// CacheUserSubscription кеширует текущую подписку пользователя
func (r *RedisCacheRepository) CacheUserSubscription(ctx context.Context, userID int64, sub *domain.Subscription) error {
	key := fmt.Sprintf("%s%d", userSubscriptionKeyPrefix, userID)

	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal user subscription for caching", "error", err, "userID", userID)
		return fmt.Errorf("failed to marshal user subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache user subscription in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache user subscription: %w", err)
	}

	r.log.Debugw("User subscription cached successfully", "userID", userID)
	return nil
}

// GetCachedUserSubscription получает текущую подписку пользователя из кеша
func (r *RedisCacheRepository) GetCachedUserSubscription(ctx context.Context, userID int64) (*domain.Subscription, error) {
	key := fmt.Sprintf("%s%d", userSubscriptionKeyPrefix, userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Ключ не найден в кеше
			r.log.Debugw("User subscription not found in cache", "userID", userID)
			return nil, nil // Возвращаем nil вместо ошибки
		}
		r.log.Errorw("Error getting user subscription from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get user subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached user subscription", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached user subscription: %w", err)
	}

	r.log.Debugw("User subscription retrieved from cache", "userID", userID)
	return &sub, nil
}

// InvalidateUserSubscriptionCache удаляет кеш подписки пользователя
func (r *RedisCacheRepository) InvalidateUserSubscriptionCache(ctx context.Context, userID int64) error {
	key := fmt.Sprintf("%s%d", userSubscriptionKeyPrefix, userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate user subscription cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate user subscription cache: %w", err)
	}

	r.log.Debugw("User subscription cache invalidated", "userID", userID)
	return nil
}
