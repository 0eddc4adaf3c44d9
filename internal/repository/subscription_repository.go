package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// SubscriptionRepository интерфейс репозитория подписок.
// Записи адресуются и по внутреннему пользователю, и по внешнему
// идентификатору Stripe: вебхуки знают только внешний.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByUserID(ctx context.Context, userID int64) (*domain.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	// UpdateByStripeID перезаписывает синхронизируемые поля по внешнему ID.
	// Возвращает ErrNotFound, если локальной записи нет.
	UpdateByStripeID(ctx context.Context, stripeSubID string, sync domain.SubscriptionSync) error
	// SetStatusByStripeID принудительно меняет только статус (события инвойсов).
	SetStatusByStripeID(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error
}

// PostgresSubscriptionRepository реализация SubscriptionRepository на PostgreSQL
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок
func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db, log: log}
}

const subscriptionColumns = `
	id, user_id, stripe_subscription_id, stripe_price_id,
	status, plan, current_period_start, current_period_end,
	cancel_at_period_end, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.Plan,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &sub, nil
}

// Create создает новую запись о подписке
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, stripe_subscription_id, stripe_price_id,
			status, plan, current_period_start, current_period_end,
			cancel_at_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.Status,
		sub.Plan,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		now,
		now,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // уникальный stripe_subscription_id
				return ErrDuplicate
			case "23503": // отсутствующий пользователь
				return ErrNotFound
			}
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// GetByUserID возвращает подписку пользователя.
// Схема допускает несколько строк, авторитетной считается последняя.
func (r *PostgresSubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

// GetByStripeSubscriptionID возвращает подписку по внешнему ID
func (r *PostgresSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_subscription_id = $1
	`
	return scanSubscription(r.db.QueryRow(ctx, query, stripeSubID))
}

// Update обновляет существующую запись о подписке
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1,
			plan = $2,
			stripe_price_id = $3,
			current_period_start = $4,
			current_period_end = $5,
			cancel_at_period_end = $6,
			updated_at = $7
		WHERE id = $8
	`

	result, err := r.db.Exec(ctx, query,
		sub.Status,
		sub.Plan,
		sub.StripePriceID,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		time.Now(),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateByStripeID перезаписывает синхронизируемые поля по внешнему ID
func (r *PostgresSubscriptionRepository) UpdateByStripeID(ctx context.Context, stripeSubID string, sync domain.SubscriptionSync) error {
	query := `
		UPDATE subscriptions
		SET status = $1,
			current_period_start = $2,
			current_period_end = $3,
			cancel_at_period_end = $4,
			updated_at = $5
		WHERE stripe_subscription_id = $6
	`

	result, err := r.db.Exec(ctx, query,
		sync.Status,
		sync.CurrentPeriodStart,
		sync.CurrentPeriodEnd,
		sync.CancelAtPeriodEnd,
		time.Now(),
		stripeSubID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription by stripe id: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetStatusByStripeID принудительно меняет статус подписки по внешнему ID
func (r *PostgresSubscriptionRepository) SetStatusByStripeID(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = $2
		WHERE stripe_subscription_id = $3
	`

	result, err := r.db.Exec(ctx, query, status, time.Now(), stripeSubID)
	if err != nil {
		return fmt.Errorf("failed to set subscription status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
