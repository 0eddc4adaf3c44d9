package domain

import "time"

// AssistSession запись о сеансе работы с ассистентом.
// Журнальная сущность: создается один раз и не изменяется.
type AssistSession struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	SessionType string    `db:"session_type" json:"session_type"` // interview, meeting, sales...
	Duration    int       `db:"duration" json:"duration"`         // в минутах
	Status      string    `db:"status" json:"status"`             // completed, in_progress, failed
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
