package domain

import "time"

// User представляет пользователя веб-приложения.
// StripeCustomerID и StripeSubscriptionID заполняются лениво при первой
// попытке оформить подписку, до этого остаются nil.
type User struct {
	ID                   int64      `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Email                string     `db:"email" json:"email"`
	PasswordHash         string     `db:"password_hash" json:"-"`
	JobRole              *string    `db:"job_role" json:"job_role,omitempty"`
	Company              *string    `db:"company" json:"company,omitempty"`
	ResumeName           *string    `db:"resume_name" json:"resume_name,omitempty"`
	ResumeURL            *string    `db:"resume_url" json:"resume_url,omitempty"`
	StripeCustomerID     *string    `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id" json:"-"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// HasStripeCustomer проверяет, создан ли для пользователя клиент в Stripe
func (u *User) HasStripeCustomer() bool {
	return u.StripeCustomerID != nil && *u.StripeCustomerID != ""
}
