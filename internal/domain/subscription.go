package domain

import "time"

// SubscriptionStatus статус подписки (словарь Stripe)
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

// Plan тарифный план приложения
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Subscription представляет локальную запись о подписке пользователя.
// Источником истины по статусу и периоду остается Stripe; локальная запись
// синхронизируется при чтении статуса и по вебхукам.
type Subscription struct {
	ID                   int64              `db:"id" json:"id"`
	UserID               int64              `db:"user_id" json:"user_id"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripePriceID        string             `db:"stripe_price_id" json:"stripe_price_id"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	Plan                 Plan               `db:"plan" json:"plan"`
	CurrentPeriodStart   time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// IsActive проверяет, действует ли подписка сейчас
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// SubscriptionSync поля, перезаписываемые из состояния Stripe.
// Используется при read-through синхронизации и при обработке вебхуков.
type SubscriptionSync struct {
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// SubscriptionView то, что видит клиент в ответе /api/subscription/status
type SubscriptionView struct {
	Plan              Plan               `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
}

// FreeSubscriptionView возвращает представление бесплатного тарифа.
// Пользователь без записи о подписке считается активным на free.
func FreeSubscriptionView() SubscriptionView {
	return SubscriptionView{
		Plan:   PlanFree,
		Status: SubscriptionStatusActive,
	}
}
