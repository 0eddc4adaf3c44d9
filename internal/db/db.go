package db

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// DBClient представляет клиент для работы с базой данных через sqlx.
// Репозитории токенов и сеансов ассистента работают через него;
// репозитории пользователей и подписок используют pgxpool напрямую.
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient создает новый экземпляр DBClient.
func NewDBClient(dsn string, log *logger.Logger) (*DBClient, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Errorw("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DBClient{db: db, log: log}, nil
}

// DB возвращает нижележащее соединение sqlx.
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	err := dc.db.Close()
	if err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
