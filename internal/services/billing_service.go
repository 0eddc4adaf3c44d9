package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/kafka"
	"github.com/kovalevn/cognitive-copilot/internal/metrics"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/internal/stripe"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// PlanCatalog отображение платного плана в Stripe Price ID.
// Бесплатный тариф в каталоге отсутствует.
type PlanCatalog map[domain.Plan]string

// NewPlanCatalog строит каталог из конфигурации
func NewPlanCatalog(plans map[string]string) PlanCatalog {
	catalog := make(PlanCatalog, len(plans))
	for plan, priceID := range plans {
		catalog[domain.Plan(plan)] = priceID
	}
	return catalog
}

// PriceFor возвращает Stripe Price ID для плана
func (c PlanCatalog) PriceFor(plan domain.Plan) (string, bool) {
	priceID, ok := c[plan]
	return priceID, ok
}

// CreateSubscriptionInput входные данные оформления подписки.
// PriceID присылается клиентом и сверяется с каталогом; источником
// истины по паре (план, цена) остается конфигурация.
type CreateSubscriptionInput struct {
	UserID  int64
	Plan    domain.Plan
	PriceID string
}

// CreateSubscriptionOutput результат оформления подписки.
// ClientSecret передается клиенту для подтверждения первого платежа.
type CreateSubscriptionOutput struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret"`
}

// BillingService содержит бизнес-логику подписок и сверки состояния со Stripe.
// Источник истины по статусу и периоду подписки - Stripe; локальная запись
// синхронизируется при чтении статуса и по вебхукам.
type BillingService struct {
	users    repository.UserRepository
	subs     repository.SubscriptionRepository
	gateway  stripe.Client
	producer kafka.Producer // может быть nil, события тогда не публикуются
	metrics  metrics.BillingMetrics
	catalog  PlanCatalog
	log      *logger.Logger
}

// NewBillingService создает новый сервис биллинга
func NewBillingService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	gateway stripe.Client,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	catalog PlanCatalog,
	log *logger.Logger,
) *BillingService {
	return &BillingService{
		users:    users,
		subs:     subs,
		gateway:  gateway,
		producer: producer,
		metrics:  billingMetrics,
		catalog:  catalog,
		log:      log,
	}
}

// CreateSubscription оформляет новую подписку для пользователя.
// Клиент Stripe создается лениво и сохраняется на пользователе ДО вызова
// создания подписки: если вызов упадет, customer не потеряется и повторная
// попытка не создаст дубликат клиента.
func (s *BillingService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*CreateSubscriptionOutput, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("billing: failed to load user: %w", err)
	}

	// Отклоняем повторное оформление при действующей подписке
	existing, err := s.subs.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("billing: failed to check existing subscription: %w", err)
	}
	if existing != nil && existing.IsActive() {
		s.log.Warnw("Subscription creation rejected, user already subscribed", "userID", user.ID, "stripeSubscriptionID", existing.StripeSubscriptionID)
		return nil, domain.ErrAlreadySubscribed
	}

	priceID, ok := s.catalog.PriceFor(input.Plan)
	if !ok {
		s.log.Warnw("Subscription creation rejected, unknown plan", "userID", user.ID, "plan", string(input.Plan))
		return nil, domain.ErrUnknownPlan
	}
	// Присланная клиентом цена обязана совпадать с каталожной для этого плана
	if input.PriceID != "" && input.PriceID != priceID {
		s.log.Warnw("Subscription creation rejected, price does not match plan", "userID", user.ID, "plan", string(input.Plan), "priceID", input.PriceID)
		return nil, domain.ErrUnknownPlan
	}

	customerID, err := s.ensureStripeCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	// Свежий ключ идемпотентности на каждую попытку. Повтор с тем же ключом
	// после ошибки валидации вернул бы ту же ошибку из кеша Stripe.
	idempotencyKey := uuid.NewString()

	started := time.Now()
	snapshot, err := s.gateway.CreateSubscription(ctx, customerID, priceID, idempotencyKey)
	s.metrics.ObserveGatewayLatency("create_subscription", time.Since(started))
	if err != nil {
		s.metrics.IncGatewayError("create_subscription")
		return nil, err
	}

	sub := &domain.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: snapshot.ID,
		StripePriceID:        priceID,
		Status:               snapshot.Status,
		Plan:                 input.Plan,
		CurrentPeriodStart:   snapshot.CurrentPeriodStart,
		CurrentPeriodEnd:     snapshot.CurrentPeriodEnd,
		CancelAtPeriodEnd:    snapshot.CancelAtPeriodEnd,
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		// Подписка в Stripe уже создана, локальная запись догонит по вебхуку
		s.log.Errorw("Failed to persist subscription created in Stripe", "error", err, "userID", user.ID, "stripeSubscriptionID", snapshot.ID)
		return nil, fmt.Errorf("billing: failed to persist subscription: %w", err)
	}

	if err := s.users.SetStripeIDs(ctx, user.ID, customerID, &snapshot.ID); err != nil {
		s.log.Warnw("Failed to store subscription ID on user", "error", err, "userID", user.ID)
	}

	s.metrics.IncSubscriptionCreated(string(input.Plan))
	s.publishEvent(ctx, kafka.TopicSubscriptionCreated, sub)

	s.log.Infow("Subscription created", "userID", user.ID, "plan", string(input.Plan), "stripeSubscriptionID", snapshot.ID, "status", string(snapshot.Status))

	return &CreateSubscriptionOutput{
		SubscriptionID: snapshot.ID,
		ClientSecret:   snapshot.ClientSecret,
	}, nil
}

// CreateSubscriptionWithRetry повторяет оформление при временных сбоях Stripe.
// Повторяются только rate limit, сетевые ошибки и 5xx; бизнес-ошибки
// (дубликат, неизвестный план) прекращают попытки сразу.
func (s *BillingService) CreateSubscriptionWithRetry(ctx context.Context, input CreateSubscriptionInput) (*CreateSubscriptionOutput, error) {
	var output *CreateSubscriptionOutput
	var lastErr error

	operation := func() error {
		var err error
		output, err = s.CreateSubscription(ctx, input)
		lastErr = err
		if err != nil {
			if stripe.IsRetryable(err) && errors.Is(err, domain.ErrGatewayUnavailable) {
				s.log.Warnw("Retryable Stripe error, retrying subscription creation", "userID", input.UserID, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = 1 * time.Minute
	bo.Reset()

	if err := backoff.Retry(backoff.Operation(operation), backoff.WithContext(bo, ctx)); err != nil {
		s.log.Errorw("Failed to create subscription after retries", "userID", input.UserID, "error", lastErr)
		return nil, lastErr
	}

	return output, nil
}

// GetStatus возвращает актуальный статус подписки пользователя.
// Пользователь без записи о подписке считается активным на free, Stripe
// при этом не вызывается. При наличии записи состояние всегда читается
// из Stripe и записывается обратно: устаревшая локальная запись никогда
// не возвращается молча, ошибка шлюза отдается наверх.
func (s *BillingService) GetStatus(ctx context.Context, userID int64) (domain.SubscriptionView, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.FreeSubscriptionView(), nil
		}
		return domain.SubscriptionView{}, fmt.Errorf("billing: failed to load subscription: %w", err)
	}

	started := time.Now()
	snapshot, err := s.gateway.GetSubscription(ctx, sub.StripeSubscriptionID)
	s.metrics.ObserveGatewayLatency("get_subscription", time.Since(started))
	if err != nil {
		s.metrics.IncGatewayError("get_subscription")
		return domain.SubscriptionView{}, err
	}

	if err := s.subs.UpdateByStripeID(ctx, sub.StripeSubscriptionID, snapshot.Sync()); err != nil {
		// Состояние из Stripe у нас уже есть, поэтому отдаем его клиенту,
		// а рассинхрон локальной записи только логируем
		s.log.Warnw("Failed to write back subscription state", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
	}

	periodEnd := snapshot.CurrentPeriodEnd
	return domain.SubscriptionView{
		Plan:              sub.Plan,
		Status:            snapshot.Status,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: snapshot.CancelAtPeriodEnd,
	}, nil
}

// Cancel помечает подписку пользователя к отмене в конце оплаченного периода.
// Доступ сохраняется до конца периода. Повторный вызов идемпотентен и не
// обращается к Stripe. Локальный флаг ставится только после успеха в Stripe.
func (s *BillingService) Cancel(ctx context.Context, userID int64) (domain.SubscriptionView, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SubscriptionView{}, domain.ErrNoSubscription
		}
		return domain.SubscriptionView{}, fmt.Errorf("billing: failed to load subscription: %w", err)
	}

	if sub.CancelAtPeriodEnd {
		s.log.Infow("Subscription already scheduled for cancellation", "userID", userID, "stripeSubscriptionID", sub.StripeSubscriptionID)
		periodEnd := sub.CurrentPeriodEnd
		return domain.SubscriptionView{
			Plan:              sub.Plan,
			Status:            sub.Status,
			CurrentPeriodEnd:  &periodEnd,
			CancelAtPeriodEnd: true,
		}, nil
	}

	started := time.Now()
	snapshot, err := s.gateway.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID)
	s.metrics.ObserveGatewayLatency("cancel_subscription", time.Since(started))
	if err != nil {
		s.metrics.IncGatewayError("cancel_subscription")
		return domain.SubscriptionView{}, err
	}

	if err := s.subs.UpdateByStripeID(ctx, sub.StripeSubscriptionID, snapshot.Sync()); err != nil {
		s.log.Warnw("Failed to persist cancellation flag", "error", err, "stripeSubscriptionID", sub.StripeSubscriptionID)
	}

	sub.Status = snapshot.Status
	sub.CurrentPeriodStart = snapshot.CurrentPeriodStart
	sub.CurrentPeriodEnd = snapshot.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = snapshot.CancelAtPeriodEnd

	s.metrics.IncSubscriptionCancelled(string(sub.Plan))
	s.publishEvent(ctx, kafka.TopicSubscriptionCancelled, sub)

	s.log.Infow("Subscription scheduled for cancellation", "userID", userID, "stripeSubscriptionID", sub.StripeSubscriptionID, "currentPeriodEnd", snapshot.CurrentPeriodEnd)

	periodEnd := snapshot.CurrentPeriodEnd
	return domain.SubscriptionView{
		Plan:              sub.Plan,
		Status:            snapshot.Status,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: snapshot.CancelAtPeriodEnd,
	}, nil
}

// ApplyWebhookEvent применяет проверенное событие вебхука к локальному
// состоянию. Событие для неизвестной подписки и неизвестный тип события
// подтверждаются без изменений: Stripe шлет события по всем объектам
// аккаунта, не только по нашим.
func (s *BillingService) ApplyWebhookEvent(ctx context.Context, event WebhookEvent) error {
	switch e := event.(type) {
	case SubscriptionUpdatedEvent:
		err := s.subs.UpdateByStripeID(ctx, e.SubscriptionID, e.Sync)
		if err == nil {
			s.publishUpdated(ctx, e.SubscriptionID)
		}
		return s.webhookOutcome(event, e.SubscriptionID, err)

	case SubscriptionDeletedEvent:
		// Завершение перезаписывает то же полное состояние, что и обновление:
		// статус, границы периода и флаг отмены берутся из payload
		err := s.subs.UpdateByStripeID(ctx, e.SubscriptionID, e.Sync)
		return s.webhookOutcome(event, e.SubscriptionID, err)

	case PaymentSucceededEvent:
		if e.SubscriptionID == "" {
			// Инвойс не связан с подпиской
			s.metrics.IncWebhookEvent(event.EventType(), "ignored")
			return nil
		}
		err := s.subs.SetStatusByStripeID(ctx, e.SubscriptionID, domain.SubscriptionStatusActive)
		return s.webhookOutcome(event, e.SubscriptionID, err)

	case PaymentFailedEvent:
		if e.SubscriptionID == "" {
			s.metrics.IncWebhookEvent(event.EventType(), "ignored")
			return nil
		}
		err := s.subs.SetStatusByStripeID(ctx, e.SubscriptionID, domain.SubscriptionStatusPastDue)
		return s.webhookOutcome(event, e.SubscriptionID, err)

	case UnknownEvent:
		s.log.Debugw("Ignoring unhandled webhook event type", "type", e.Type)
		s.metrics.IncWebhookEvent(e.Type, "ignored")
		return nil

	default:
		s.log.Warnw("Webhook event of unexpected variant", "type", event.EventType())
		s.metrics.IncWebhookEvent(event.EventType(), "ignored")
		return nil
	}
}

// webhookOutcome единообразно обрабатывает результат применения события
func (s *BillingService) webhookOutcome(event WebhookEvent, subscriptionID string, err error) error {
	if err == nil {
		s.metrics.IncWebhookEvent(event.EventType(), "applied")
		s.log.Infow("Webhook event applied", "type", event.EventType(), "stripeSubscriptionID", subscriptionID)
		return nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		// Подписка не наша или запись еще не создана, подтверждаем без изменений
		s.log.Warnw("Webhook event for unknown subscription, acknowledged", "type", event.EventType(), "stripeSubscriptionID", subscriptionID)
		s.metrics.IncWebhookEvent(event.EventType(), "ignored")
		return nil
	}

	s.metrics.IncWebhookEvent(event.EventType(), "error")
	s.log.Errorw("Failed to apply webhook event", "error", err, "type", event.EventType(), "stripeSubscriptionID", subscriptionID)
	return fmt.Errorf("billing: failed to apply webhook event: %w", err)
}

// ensureStripeCustomer возвращает Stripe Customer ID пользователя,
// создавая клиента при первой необходимости
func (s *BillingService) ensureStripeCustomer(ctx context.Context, user *domain.User) (string, error) {
	if user.HasStripeCustomer() {
		return *user.StripeCustomerID, nil
	}

	started := time.Now()
	customerID, err := s.gateway.CreateCustomer(ctx, user.ID, user.Name, user.Email)
	s.metrics.ObserveGatewayLatency("create_customer", time.Since(started))
	if err != nil {
		s.metrics.IncGatewayError("create_customer")
		return "", err
	}

	// Сохраняем до создания подписки, иначе при сбое дальше customer потеряется
	if err := s.users.SetStripeIDs(ctx, user.ID, customerID, nil); err != nil {
		s.log.Errorw("Failed to persist Stripe customer ID", "error", err, "userID", user.ID, "stripeCustomerID", customerID)
		return "", fmt.Errorf("billing: failed to persist customer ID: %w", err)
	}

	user.StripeCustomerID = &customerID
	return customerID, nil
}

// publishUpdated публикует синхронизированное состояние подписки в Kafka
func (s *BillingService) publishUpdated(ctx context.Context, stripeSubID string) {
	if s.producer == nil {
		return
	}

	sub, err := s.subs.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		s.log.Warnw("Failed to load subscription for event publishing", "error", err, "stripeSubscriptionID", stripeSubID)
		return
	}

	s.publishEvent(ctx, kafka.TopicSubscriptionUpdated, sub)
}

// publishEvent публикует событие жизненного цикла подписки в Kafka.
// Публикация не блокирует запрос и не зависит от его отмены.
func (s *BillingService) publishEvent(ctx context.Context, topic string, sub *domain.Subscription) {
	if s.producer == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	snapshot := *sub
	go func() {
		if err := s.producer.PublishSubscriptionEvent(detached, topic, &snapshot); err != nil {
			s.log.Warnw("Failed to publish subscription event", "error", err, "topic", topic, "stripeSubscriptionID", snapshot.StripeSubscriptionID)
		}
	}()
}
