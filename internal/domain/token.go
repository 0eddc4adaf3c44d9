package domain

import "time"

// APIToken долгоживущий токен для десктопного клиента.
// В отличие от сессионного JWT не истекает сам по себе и удаляется явно.
type APIToken struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"-"`
	Name      string     `db:"name" json:"name"`
	LastUsed  *time.Time `db:"last_used" json:"last_used,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
