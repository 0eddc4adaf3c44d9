package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// AssistSessionRepository интерфейс журнала сеансов ассистента.
// Только создание и чтение: записи не изменяются после создания.
type AssistSessionRepository interface {
	Create(ctx context.Context, session *domain.AssistSession) error
	ListByUserID(ctx context.Context, userID int64) ([]domain.AssistSession, error)
}

// SQLAssistSessionRepository реализация AssistSessionRepository через sqlx
type SQLAssistSessionRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLAssistSessionRepository создает новый репозиторий сеансов
func NewSQLAssistSessionRepository(db *sqlx.DB, log *logger.Logger) *SQLAssistSessionRepository {
	return &SQLAssistSessionRepository{db: db, log: log}
}

// Create создает запись о сеансе и заполняет ее ID
func (r *SQLAssistSessionRepository) Create(ctx context.Context, session *domain.AssistSession) error {
	query := `
		INSERT INTO sessions (user_id, session_type, duration, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		session.UserID, session.SessionType, session.Duration, session.Status, time.Now(),
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assist session: %w", err)
	}

	return nil
}

// ListByUserID возвращает сеансы пользователя, новые первыми
func (r *SQLAssistSessionRepository) ListByUserID(ctx context.Context, userID int64) ([]domain.AssistSession, error) {
	query := `
		SELECT id, user_id, session_type, duration, status, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	var sessions []domain.AssistSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list assist sessions: %w", err)
	}

	return sessions, nil
}
