package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключ метаданных для связи Stripe Customer с нашим UserID
	metadataUserIDKey = "user_id"
)

// SubscriptionSnapshot срез состояния подписки на стороне Stripe.
// Это единственное, что уровень сервисов видит от шлюза.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             domain.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	ClientSecret       string
}

// Sync конвертирует снимок в поля для перезаписи локальной записи
func (s SubscriptionSnapshot) Sync() domain.SubscriptionSync {
	return domain.SubscriptionSync{
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCustomer создает нового клиента в Stripe и возвращает его Stripe ID.
	CreateCustomer(ctx context.Context, userID int64, name, email string) (string, error)

	// CreateSubscription создает подписку в Stripe для клиента.
	// Подписка создается в статусе incomplete, первый платеж подтверждается
	// на клиенте через возвращаемый Client Secret.
	CreateSubscription(ctx context.Context, stripeCustomerID, priceID, idempotencyKey string) (*SubscriptionSnapshot, error)

	// GetSubscription возвращает текущее состояние подписки в Stripe.
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error)

	// CancelAtPeriodEnd помечает подписку к отмене в конце оплаченного периода.
	CancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error)
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil) // Инициализируем клиент Stripe с API ключом
	return &stripeClient{
		client: sc,
		log:    log,
	}
}

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, userID int64, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
		Metadata: map[string]string{
			metadataUserIDKey: fmt.Sprintf("%d", userID),
		},
	}
	params.Context = ctx

	cus, err := sc.client.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", wrapStripeError("CreateCustomer", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return cus.ID, nil
}

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, stripeCustomerID, priceID, idempotencyKey string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(stripeCustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Params: stripe.Params{
			IdempotencyKey: stripe.String(idempotencyKey),
			Context:        ctx,
		},
	}
	// Используем AddExpand для получения PaymentIntent
	params.AddExpand("latest_invoice.payment_intent")

	subscription, err := sc.client.Subscriptions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateSubscription", err)
		return nil, wrapStripeError("CreateSubscription", err)
	}

	sc.log.Infow("Stripe subscription created", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))

	snapshot := snapshotFromSubscription(subscription)

	// Извлекаем client_secret для подтверждения первого платежа на клиенте
	if subscription.LatestInvoice != nil && subscription.LatestInvoice.PaymentIntent != nil {
		snapshot.ClientSecret = subscription.LatestInvoice.PaymentIntent.ClientSecret
		sc.log.Debugw("Retrieved client secret from payment intent", "stripeSubscriptionID", subscription.ID, "paymentIntentID", subscription.LatestInvoice.PaymentIntent.ID)
	} else {
		sc.log.Warnw("No payment intent or client secret found in created subscription", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))
	}

	return snapshot, nil
}

// GetSubscription возвращает текущее состояние подписки в Stripe.
func (sc *stripeClient) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	subscription, err := sc.client.Subscriptions.Get(stripeSubscriptionID, params)
	if err != nil {
		logStripeError(sc.log, "GetSubscription", err)
		return nil, wrapStripeError("GetSubscription", err)
	}

	sc.log.Debugw("Stripe subscription retrieved", "stripeSubscriptionID", subscription.ID, "status", string(subscription.Status))
	return snapshotFromSubscription(subscription), nil
}

// CancelAtPeriodEnd помечает подписку к отмене в конце периода.
// Доступ сохраняется до конца оплаченного периода, немедленной отмены нет.
func (sc *stripeClient) CancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
		Params: stripe.Params{
			Context: ctx,
		},
	}

	subscription, err := sc.client.Subscriptions.Update(stripeSubscriptionID, params)
	if err != nil {
		logStripeError(sc.log, "CancelAtPeriodEnd", err)
		return nil, wrapStripeError("CancelAtPeriodEnd", err)
	}

	sc.log.Infow("Stripe subscription scheduled for cancellation", "stripeSubscriptionID", subscription.ID, "currentPeriodEnd", subscription.CurrentPeriodEnd)
	return snapshotFromSubscription(subscription), nil
}

// snapshotFromSubscription переводит объект Stripe в снимок домена
func snapshotFromSubscription(sub *stripe.Subscription) *SubscriptionSnapshot {
	snapshot := &SubscriptionSnapshot{
		ID:                 sub.ID,
		Status:             domain.SubscriptionStatus(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		snapshot.CustomerID = sub.Customer.ID
	}
	return snapshot
}

// IsRetryable сообщает, имеет ли смысл повторить вызов Stripe.
// Повторяем только rate limit, сетевые сбои и 5xx; ошибки валидации
// и карточные ошибки повтором не лечатся.
func IsRetryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
			return true
		}
		return stripeErr.Type == stripe.ErrorTypeAPI
	}
	// Не-Stripe ошибка означает сетевой сбой до получения ответа
	return err != nil
}

// wrapStripeError оборачивает ошибку Stripe в доменную ошибку внешнего сервиса
func wrapStripeError(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return domain.NewExternalServiceError("stripe", string(stripeErr.Code), stripeErr.Msg, stripeErr.HTTPStatusCode, err)
	}
	return domain.NewExternalServiceError("stripe", "unknown", fmt.Sprintf("%s failed", operation), 0, err)
}

// logStripeError вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
