package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kovalevn/cognitive-copilot/internal/domain"

	stripego "github.com/stripe/stripe-go/v78"
)

// Типы событий Stripe, которые обрабатывает сервис
const (
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// WebhookEvent закрытое множество событий вебхука. Каждый вариант несет
// только те поля, которые нужны для его обработки. Неизвестные типы
// представлены UnknownEvent и подтверждаются без изменений состояния.
type WebhookEvent interface {
	webhookEvent()
	// EventType возвращает исходный тип события Stripe
	EventType() string
}

// SubscriptionUpdatedEvent полное состояние подписки изменилось на стороне Stripe
type SubscriptionUpdatedEvent struct {
	SubscriptionID string
	Sync           domain.SubscriptionSync
}

func (SubscriptionUpdatedEvent) webhookEvent() {}
func (SubscriptionUpdatedEvent) EventType() string { return EventSubscriptionUpdated }

// SubscriptionDeletedEvent подписка завершена на стороне Stripe.
// Payload несет то же полное состояние, что и событие обновления:
// статус, границы периода и флаг отмены перезаписываются целиком.
type SubscriptionDeletedEvent struct {
	SubscriptionID string
	Sync           domain.SubscriptionSync
}

func (SubscriptionDeletedEvent) webhookEvent() {}
func (SubscriptionDeletedEvent) EventType() string { return EventSubscriptionDeleted }

// PaymentSucceededEvent оплата инвойса подписки прошла успешно
type PaymentSucceededEvent struct {
	SubscriptionID string
}

func (PaymentSucceededEvent) webhookEvent() {}
func (PaymentSucceededEvent) EventType() string { return EventPaymentSucceeded }

// PaymentFailedEvent оплата инвойса подписки не прошла
type PaymentFailedEvent struct {
	SubscriptionID string
}

func (PaymentFailedEvent) webhookEvent() {}
func (PaymentFailedEvent) EventType() string { return EventPaymentFailed }

// UnknownEvent событие, которое сервис не обрабатывает
type UnknownEvent struct {
	Type string
}

func (UnknownEvent) webhookEvent() {}
func (e UnknownEvent) EventType() string { return e.Type }

// ParseWebhookEvent разбирает проверенное событие Stripe в один из
// вариантов WebhookEvent. Подпись события должна быть проверена до вызова.
func ParseWebhookEvent(event stripego.Event) (WebhookEvent, error) {
	switch string(event.Type) {
	case EventSubscriptionUpdated:
		subID, sync, err := subscriptionSync(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return SubscriptionUpdatedEvent{SubscriptionID: subID, Sync: sync}, nil

	case EventSubscriptionDeleted:
		subID, sync, err := subscriptionSync(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return SubscriptionDeletedEvent{SubscriptionID: subID, Sync: sync}, nil

	case EventPaymentSucceeded:
		subID, err := invoiceSubscriptionID(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return PaymentSucceededEvent{SubscriptionID: subID}, nil

	case EventPaymentFailed:
		subID, err := invoiceSubscriptionID(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return PaymentFailedEvent{SubscriptionID: subID}, nil

	default:
		return UnknownEvent{Type: string(event.Type)}, nil
	}
}

// subscriptionSync разбирает payload подписки в перезаписываемые поля
func subscriptionSync(raw json.RawMessage) (string, domain.SubscriptionSync, error) {
	var sub stripego.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", domain.SubscriptionSync{}, fmt.Errorf("webhook: failed to parse subscription payload: %w", err)
	}
	return sub.ID, domain.SubscriptionSync{
		Status:             domain.SubscriptionStatus(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}, nil
}

// invoiceSubscriptionID достает ID подписки из payload инвойса
func invoiceSubscriptionID(raw json.RawMessage) (string, error) {
	var invoice stripego.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return "", fmt.Errorf("webhook: failed to parse invoice payload: %w", err)
	}
	if invoice.Subscription == nil {
		// Инвойс не связан с подпиской (разовый платеж), обрабатывать нечего
		return "", nil
	}
	return invoice.Subscription.ID, nil
}
