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

// UserRepository интерфейс репозитория пользователей
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// SetStripeIDs сохраняет внешние идентификаторы Stripe.
	// subscriptionID может быть nil, тогда обновляется только customer ID.
	SetStripeIDs(ctx context.Context, userID int64, customerID string, subscriptionID *string) error
}

// PostgresUserRepository реализация UserRepository на PostgreSQL
type PostgresUserRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresUserRepository создает новый репозиторий пользователей
func NewPostgresUserRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{db: db, log: log}
}

const userColumns = `
	id, name, email, password_hash, job_role, company,
	resume_name, resume_url, stripe_customer_id, stripe_subscription_id,
	created_at, updated_at
`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.JobRole,
		&user.Company,
		&user.ResumeName,
		&user.ResumeURL,
		&user.StripeCustomerID,
		&user.StripeSubscriptionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// Create создает нового пользователя и заполняет его ID
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			name, email, password_hash, job_role, company,
			resume_name, resume_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.JobRole,
		user.Company,
		user.ResumeName,
		user.ResumeURL,
		now,
		now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Нарушение уникальности email
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID возвращает пользователя по внутреннему ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByEmail возвращает пользователя по email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// Update обновляет профиль пользователя
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, job_role = $2, company = $3,
			resume_name = $4, resume_url = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.Exec(ctx, query,
		user.Name,
		user.JobRole,
		user.Company,
		user.ResumeName,
		user.ResumeURL,
		time.Now(),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetStripeIDs сохраняет идентификаторы Stripe на пользователе
func (r *PostgresUserRepository) SetStripeIDs(ctx context.Context, userID int64, customerID string, subscriptionID *string) error {
	query := `
		UPDATE users
		SET stripe_customer_id = $1,
			stripe_subscription_id = COALESCE($2, stripe_subscription_id),
			updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.Exec(ctx, query, customerID, subscriptionID, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to set stripe ids: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
