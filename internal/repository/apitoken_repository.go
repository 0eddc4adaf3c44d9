package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// APITokenRepository интерфейс репозитория токенов десктопного клиента
type APITokenRepository interface {
	Create(ctx context.Context, token *domain.APIToken) error
	ListByUserID(ctx context.Context, userID int64) ([]domain.APIToken, error)
	GetByToken(ctx context.Context, token string) (*domain.APIToken, error)
	// Touch отмечает момент последнего использования токена.
	Touch(ctx context.Context, id int64) error
	Delete(ctx context.Context, id, userID int64) error
}

// SQLAPITokenRepository реализация APITokenRepository через sqlx
type SQLAPITokenRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLAPITokenRepository создает новый репозиторий токенов
func NewSQLAPITokenRepository(db *sqlx.DB, log *logger.Logger) *SQLAPITokenRepository {
	return &SQLAPITokenRepository{db: db, log: log}
}

// Create создает новый токен и заполняет его ID
func (r *SQLAPITokenRepository) Create(ctx context.Context, token *domain.APIToken) error {
	query := `
		INSERT INTO api_tokens (user_id, token, name, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		token.UserID, token.Token, token.Name, time.Now(),
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}

	return nil
}

// ListByUserID возвращает токены пользователя
func (r *SQLAPITokenRepository) ListByUserID(ctx context.Context, userID int64) ([]domain.APIToken, error) {
	query := `
		SELECT id, user_id, token, name, last_used, created_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	var tokens []domain.APIToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list api tokens: %w", err)
	}

	return tokens, nil
}

// GetByToken возвращает токен по его значению
func (r *SQLAPITokenRepository) GetByToken(ctx context.Context, token string) (*domain.APIToken, error) {
	query := `
		SELECT id, user_id, token, name, last_used, created_at
		FROM api_tokens
		WHERE token = $1
	`

	var apiToken domain.APIToken
	err := r.db.GetContext(ctx, &apiToken, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api token: %w", err)
	}

	return &apiToken, nil
}

// Touch отмечает момент последнего использования токена
func (r *SQLAPITokenRepository) Touch(ctx context.Context, id int64) error {
	query := `UPDATE api_tokens SET last_used = $1 WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch api token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows count: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete удаляет токен. userID защищает от удаления чужого токена.
func (r *SQLAPITokenRepository) Delete(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete api token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows count: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
