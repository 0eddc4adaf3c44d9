package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

func newAccessFixture(t *testing.T) (*AccessGate, *repository.InMemorySubscriptionRepository) {
	t.Helper()
	log := logger.New(logger.ERROR)
	subs := repository.NewInMemorySubscriptionRepository(log)
	return NewAccessGate(subs, log), subs
}

func seedSubscription(t *testing.T, subs *repository.InMemorySubscriptionRepository, userID int64, plan domain.Plan, status domain.SubscriptionStatus) {
	t.Helper()
	require.NoError(t, subs.Create(context.Background(), &domain.Subscription{
		UserID:               userID,
		StripeSubscriptionID: "sub_" + string(plan),
		StripePriceID:        "price_" + string(plan),
		Status:               status,
		Plan:                 plan,
		CurrentPeriodEnd:     time.Now().Add(24 * time.Hour),
	}))
}

func TestEffectivePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscription means free", func(t *testing.T) {
		gate, _ := newAccessFixture(t)

		plan, err := gate.EffectivePlan(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanFree, plan)
	})

	t.Run("active subscription returns its plan", func(t *testing.T) {
		gate, subs := newAccessFixture(t)
		seedSubscription(t, subs, 1, domain.PlanPro, domain.SubscriptionStatusActive)

		plan, err := gate.EffectivePlan(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanPro, plan)
	})

	t.Run("past_due subscription keeps its plan", func(t *testing.T) {
		// Льготный период повторных списаний не отбирает оплаченный тариф
		gate, subs := newAccessFixture(t)
		seedSubscription(t, subs, 1, domain.PlanPro, domain.SubscriptionStatusPastDue)

		plan, err := gate.EffectivePlan(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanPro, plan)
	})

	t.Run("plan is derived from the subscription regardless of status", func(t *testing.T) {
		gate, subs := newAccessFixture(t)
		seedSubscription(t, subs, 1, domain.PlanEnterprise, domain.SubscriptionStatusTrialing)

		plan, err := gate.EffectivePlan(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanEnterprise, plan)
	})
}

func TestHasFeature(t *testing.T) {
	ctx := context.Background()

	t.Run("free plan has only session history", func(t *testing.T) {
		gate, _ := newAccessFixture(t)

		has, err := gate.HasFeature(ctx, 1, FeatureSessionHistory)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = gate.HasFeature(ctx, 1, FeatureRealtimeAssist)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("pro plan unlocks realtime assist", func(t *testing.T) {
		gate, subs := newAccessFixture(t)
		seedSubscription(t, subs, 1, domain.PlanPro, domain.SubscriptionStatusActive)

		has, err := gate.HasFeature(ctx, 1, FeatureRealtimeAssist)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = gate.HasFeature(ctx, 1, FeaturePrioritySupport)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("enterprise plan has everything", func(t *testing.T) {
		gate, subs := newAccessFixture(t)
		seedSubscription(t, subs, 1, domain.PlanEnterprise, domain.SubscriptionStatusActive)

		for _, feature := range []string{FeatureRealtimeAssist, FeatureResumeAnalysis, FeatureSessionHistory, FeatureUnlimitedUsage, FeaturePrioritySupport} {
			has, err := gate.HasFeature(ctx, 1, feature)
			require.NoError(t, err)
			assert.True(t, has, feature)
		}
	})
}
