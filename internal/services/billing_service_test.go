package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/kafka"
	"github.com/kovalevn/cognitive-copilot/internal/metrics"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/internal/stripe"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// fakeGateway управляемая замена Stripe клиента для тестов
type fakeGateway struct {
	createCustomerCalls int
	createSubCalls      int
	getCalls            int
	cancelCalls         int

	createCustomerErr error
	createSubErr      error
	getErr            error
	cancelErr         error

	remoteStatus domain.SubscriptionStatus
	remoteCancel bool
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, userID int64, name, email string) (string, error) {
	g.createCustomerCalls++
	if g.createCustomerErr != nil {
		return "", g.createCustomerErr
	}
	return "cus_test_1", nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*stripe.SubscriptionSnapshot, error) {
	g.createSubCalls++
	if g.createSubErr != nil {
		return nil, g.createSubErr
	}
	return &stripe.SubscriptionSnapshot{
		ID:                 "sub_test_1",
		CustomerID:         customerID,
		Status:             domain.SubscriptionStatusIncomplete,
		CurrentPeriodStart: time.Now().UTC().Truncate(time.Second),
		CurrentPeriodEnd:   time.Now().UTC().Truncate(time.Second).Add(30 * 24 * time.Hour),
		ClientSecret:       "pi_secret_test",
	}, nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subID string) (*stripe.SubscriptionSnapshot, error) {
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	status := g.remoteStatus
	if status == "" {
		status = domain.SubscriptionStatusActive
	}
	return &stripe.SubscriptionSnapshot{
		ID:                 subID,
		Status:             status,
		CurrentPeriodStart: time.Now().UTC().Truncate(time.Second),
		CurrentPeriodEnd:   time.Now().UTC().Truncate(time.Second).Add(30 * 24 * time.Hour),
		CancelAtPeriodEnd:  g.remoteCancel,
	}, nil
}

func (g *fakeGateway) CancelAtPeriodEnd(ctx context.Context, subID string) (*stripe.SubscriptionSnapshot, error) {
	g.cancelCalls++
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &stripe.SubscriptionSnapshot{
		ID:                 subID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: time.Now().UTC().Truncate(time.Second),
		CurrentPeriodEnd:   time.Now().UTC().Truncate(time.Second).Add(10 * 24 * time.Hour),
		CancelAtPeriodEnd:  true,
	}, nil
}

// fakeProducer запоминает опубликованные топики вместо отправки в Kafka
type fakeProducer struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakeProducer) PublishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type billingFixture struct {
	users   *repository.InMemoryUserRepository
	subs    *repository.InMemorySubscriptionRepository
	gateway *fakeGateway
	svc     *BillingService
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	log := logger.New(logger.ERROR)
	users := repository.NewInMemoryUserRepository(log)
	subs := repository.NewInMemorySubscriptionRepository(log)
	gateway := &fakeGateway{}
	billingMetrics := metrics.NewBillingMetrics(prometheus.NewRegistry(), log)
	catalog := PlanCatalog{
		domain.PlanPro:        "price_pro",
		domain.PlanEnterprise: "price_ent",
	}
	svc := NewBillingService(users, subs, gateway, nil, billingMetrics, catalog, log)
	return &billingFixture{users: users, subs: subs, gateway: gateway, svc: svc}
}

func (f *billingFixture) createUser(t *testing.T) *domain.User {
	t.Helper()
	user := &domain.User{
		Name:         "Test User",
		Email:        "user@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *billingFixture) createActiveSubscription(t *testing.T, userID int64) *domain.Subscription {
	t.Helper()
	sub := &domain.Subscription{
		UserID:               userID,
		StripeSubscriptionID: "sub_existing",
		StripePriceID:        "price_pro",
		Status:               domain.SubscriptionStatusActive,
		Plan:                 domain.PlanPro,
		CurrentPeriodStart:   time.Now().Add(-time.Hour),
		CurrentPeriodEnd:     time.Now().Add(29 * 24 * time.Hour),
	}
	require.NoError(t, f.subs.Create(context.Background(), sub))
	return sub
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("creates customer lazily and persists it before subscription call", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		f.gateway.createSubErr = domain.NewExternalServiceError("stripe", "api_error", "boom", 500, nil)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		require.Error(t, err)

		// Клиент Stripe создан и сохранен несмотря на сбой создания подписки
		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.StripeCustomerID)
		assert.Equal(t, "cus_test_1", *stored.StripeCustomerID)
		assert.Equal(t, 1, f.gateway.createCustomerCalls)
	})

	t.Run("returns client secret and persists local row", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		output, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		require.NoError(t, err)
		assert.Equal(t, "sub_test_1", output.SubscriptionID)
		assert.Equal(t, "pi_secret_test", output.ClientSecret)

		sub, err := f.subs.GetByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub_test_1", sub.StripeSubscriptionID)
		assert.Equal(t, "price_pro", sub.StripePriceID)
		assert.Equal(t, domain.SubscriptionStatusIncomplete, sub.Status)
		assert.Equal(t, domain.PlanPro, sub.Plan)

		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.StripeSubscriptionID)
		assert.Equal(t, "sub_test_1", *stored.StripeSubscriptionID)
	})

	t.Run("reuses existing stripe customer", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		customerID := "cus_existing"
		require.NoError(t, f.users.SetStripeIDs(ctx, user.ID, customerID, nil))

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		require.NoError(t, err)
		assert.Equal(t, 0, f.gateway.createCustomerCalls)
	})

	t.Run("rejects duplicate while subscription is active", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		f.createActiveSubscription(t, user.ID)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
		assert.Equal(t, 0, f.gateway.createSubCalls)
	})

	t.Run("allows new subscription after previous one is canceled", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)
		require.NoError(t, f.subs.SetStatusByStripeID(ctx, sub.StripeSubscriptionID, domain.SubscriptionStatusCanceled))

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		require.NoError(t, err)
	})

	t.Run("rejects unknown plan without gateway calls", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.Plan("platinum")})
		assert.ErrorIs(t, err, domain.ErrUnknownPlan)
		assert.Equal(t, 0, f.gateway.createCustomerCalls)
		assert.Equal(t, 0, f.gateway.createSubCalls)
	})

	t.Run("rejects price id that does not match the plan", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{
			UserID:  user.ID,
			Plan:    domain.PlanPro,
			PriceID: "price_ent",
		})
		assert.ErrorIs(t, err, domain.ErrUnknownPlan)
		assert.Equal(t, 0, f.gateway.createSubCalls)
	})

	t.Run("accepts matching price id from the client", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{
			UserID:  user.ID,
			Plan:    domain.PlanPro,
			PriceID: "price_pro",
		})
		require.NoError(t, err)
	})
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("user without subscription is active on free without gateway call", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		view, err := f.svc.GetStatus(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanFree, view.Plan)
		assert.Equal(t, domain.SubscriptionStatusActive, view.Status)
		assert.Nil(t, view.CurrentPeriodEnd)
		assert.Equal(t, 0, f.gateway.getCalls)
	})

	t.Run("reads gateway state and writes it back", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)
		f.gateway.remoteStatus = domain.SubscriptionStatusPastDue
		f.gateway.remoteCancel = true

		view, err := f.svc.GetStatus(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanPro, view.Plan)
		assert.Equal(t, domain.SubscriptionStatusPastDue, view.Status)
		assert.True(t, view.CancelAtPeriodEnd)
		require.NotNil(t, view.CurrentPeriodEnd)

		// Локальная запись перезаписана состоянием из Stripe
		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusPastDue, stored.Status)
		assert.True(t, stored.CancelAtPeriodEnd)
	})

	t.Run("gateway failure is surfaced instead of stale state", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		f.createActiveSubscription(t, user.ID)
		f.gateway.getErr = domain.NewExternalServiceError("stripe", "api_error", "down", 503, nil)

		_, err := f.svc.GetStatus(ctx, user.ID)
		assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ErrNoSubscription without local row", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)

		_, err := f.svc.Cancel(ctx, user.ID)
		assert.ErrorIs(t, err, domain.ErrNoSubscription)
		assert.Equal(t, 0, f.gateway.cancelCalls)
	})

	t.Run("cancels at period end via gateway before local flag", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)

		view, err := f.svc.Cancel(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, view.CancelAtPeriodEnd)
		assert.Equal(t, domain.SubscriptionStatusActive, view.Status)
		assert.Equal(t, 1, f.gateway.cancelCalls)

		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.True(t, stored.CancelAtPeriodEnd)
	})

	t.Run("repeated cancel succeeds without gateway calls", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		f.createActiveSubscription(t, user.ID)

		_, err := f.svc.Cancel(ctx, user.ID)
		require.NoError(t, err)

		view, err := f.svc.Cancel(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, view.CancelAtPeriodEnd)
		assert.Equal(t, 1, f.gateway.cancelCalls)
	})

	t.Run("gateway failure leaves local flag untouched", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)
		f.gateway.cancelErr = domain.NewExternalServiceError("stripe", "api_error", "down", 503, nil)

		_, err := f.svc.Cancel(ctx, user.ID)
		assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.False(t, stored.CancelAtPeriodEnd)
	})
}

func TestApplyWebhookEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("subscription updated overwrites sync fields", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)

		periodEnd := time.Now().UTC().Truncate(time.Second).Add(60 * 24 * time.Hour)
		err := f.svc.ApplyWebhookEvent(ctx, SubscriptionUpdatedEvent{
			SubscriptionID: sub.StripeSubscriptionID,
			Sync: domain.SubscriptionSync{
				Status:            domain.SubscriptionStatusTrialing,
				CurrentPeriodEnd:  periodEnd,
				CancelAtPeriodEnd: true,
			},
		})
		require.NoError(t, err)

		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusTrialing, stored.Status)
		assert.Equal(t, periodEnd, stored.CurrentPeriodEnd)
		assert.True(t, stored.CancelAtPeriodEnd)
	})

	t.Run("subscription deleted overwrites full state from payload", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)

		periodEnd := time.Now().UTC().Truncate(time.Second).Add(48 * time.Hour)
		err := f.svc.ApplyWebhookEvent(ctx, SubscriptionDeletedEvent{
			SubscriptionID: sub.StripeSubscriptionID,
			Sync: domain.SubscriptionSync{
				Status:           domain.SubscriptionStatusCanceled,
				CurrentPeriodEnd: periodEnd,
			},
		})
		require.NoError(t, err)

		// Вместе со статусом перезаписывается и конец периода
		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusCanceled, stored.Status)
		assert.Equal(t, periodEnd, stored.CurrentPeriodEnd)
	})

	t.Run("payment succeeded forces active", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)
		require.NoError(t, f.subs.SetStatusByStripeID(ctx, sub.StripeSubscriptionID, domain.SubscriptionStatusIncomplete))

		err := f.svc.ApplyWebhookEvent(ctx, PaymentSucceededEvent{SubscriptionID: sub.StripeSubscriptionID})
		require.NoError(t, err)

		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
	})

	t.Run("payment failed forces past_due", func(t *testing.T) {
		f := newBillingFixture(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)

		err := f.svc.ApplyWebhookEvent(ctx, PaymentFailedEvent{SubscriptionID: sub.StripeSubscriptionID})
		require.NoError(t, err)

		stored, err := f.subs.GetByStripeSubscriptionID(ctx, sub.StripeSubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusPastDue, stored.Status)
	})

	t.Run("event for unknown subscription is acknowledged without changes", func(t *testing.T) {
		f := newBillingFixture(t)

		err := f.svc.ApplyWebhookEvent(ctx, SubscriptionDeletedEvent{SubscriptionID: "sub_foreign"})
		assert.NoError(t, err)
		assert.Equal(t, 0, f.subs.Len())
	})

	t.Run("unknown event kind is acknowledged", func(t *testing.T) {
		f := newBillingFixture(t)

		err := f.svc.ApplyWebhookEvent(ctx, UnknownEvent{Type: "charge.refunded"})
		assert.NoError(t, err)
	})

	t.Run("invoice without subscription is ignored", func(t *testing.T) {
		f := newBillingFixture(t)

		err := f.svc.ApplyWebhookEvent(ctx, PaymentSucceededEvent{SubscriptionID: ""})
		assert.NoError(t, err)
	})
}

func TestEventPublishing(t *testing.T) {
	ctx := context.Background()

	newFixtureWithProducer := func(t *testing.T) (*billingFixture, *fakeProducer) {
		t.Helper()
		log := logger.New(logger.ERROR)
		users := repository.NewInMemoryUserRepository(log)
		subs := repository.NewInMemorySubscriptionRepository(log)
		gateway := &fakeGateway{}
		producer := &fakeProducer{}
		billingMetrics := metrics.NewBillingMetrics(prometheus.NewRegistry(), log)
		catalog := PlanCatalog{domain.PlanPro: "price_pro"}
		svc := NewBillingService(users, subs, gateway, producer, billingMetrics, catalog, log)
		return &billingFixture{users: users, subs: subs, gateway: gateway, svc: svc}, producer
	}

	t.Run("create publishes created event", func(t *testing.T) {
		f, producer := newFixtureWithProducer(t)
		user := f.createUser(t)

		_, err := f.svc.CreateSubscription(ctx, CreateSubscriptionInput{UserID: user.ID, Plan: domain.PlanPro})
		require.NoError(t, err)

		// Публикация асинхронная, ждем ее завершения
		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{kafka.TopicSubscriptionCreated}, producer.published())
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("webhook update publishes updated event", func(t *testing.T) {
		f, producer := newFixtureWithProducer(t)
		user := f.createUser(t)
		sub := f.createActiveSubscription(t, user.ID)

		err := f.svc.ApplyWebhookEvent(ctx, SubscriptionUpdatedEvent{
			SubscriptionID: sub.StripeSubscriptionID,
			Sync:           domain.SubscriptionSync{Status: domain.SubscriptionStatusPastDue},
		})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{kafka.TopicSubscriptionUpdated}, producer.published())
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("cancel publishes cancelled event", func(t *testing.T) {
		f, producer := newFixtureWithProducer(t)
		user := f.createUser(t)
		f.createActiveSubscription(t, user.ID)

		_, err := f.svc.Cancel(ctx, user.ID)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{kafka.TopicSubscriptionCancelled}, producer.published())
		}, time.Second, 10*time.Millisecond)
	})
}
