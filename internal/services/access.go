package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// Возможности приложения, включаемые тарифом
const (
	FeatureRealtimeAssist  = "realtime_assist"
	FeatureResumeAnalysis  = "resume_analysis"
	FeatureSessionHistory  = "session_history"
	FeatureUnlimitedUsage  = "unlimited_usage"
	FeaturePrioritySupport = "priority_support"
)

// planFeatures статическая карта план -> возможности.
// Каждый следующий тариф включает возможности предыдущего.
var planFeatures = map[domain.Plan]map[string]bool{
	domain.PlanFree: {
		FeatureSessionHistory: true,
	},
	domain.PlanPro: {
		FeatureSessionHistory: true,
		FeatureRealtimeAssist: true,
		FeatureResumeAnalysis: true,
	},
	domain.PlanEnterprise: {
		FeatureSessionHistory:  true,
		FeatureRealtimeAssist:  true,
		FeatureResumeAnalysis:  true,
		FeatureUnlimitedUsage:  true,
		FeaturePrioritySupport: true,
	},
}

// AccessGate решает, какой тариф действует для пользователя и какие
// возможности ему доступны. Решение принимается по локальной записи без
// обращения к Stripe: для проверки доступа важна скорость, а не
// посекундная точность, расхождение устраняется вебхуками.
// Тариф определяется только планом подписки. Статус доступ не ограничивает:
// подписка в past_due находится в льготном периоде повторных списаний,
// и отбирать оплаченные возможности в этот момент нельзя.
type AccessGate struct {
	subs repository.SubscriptionRepository
	log  *logger.Logger
}

// NewAccessGate создает новый AccessGate
func NewAccessGate(subs repository.SubscriptionRepository, log *logger.Logger) *AccessGate {
	return &AccessGate{
		subs: subs,
		log:  log,
	}
}

// EffectivePlan возвращает действующий тариф пользователя.
// Без записи о подписке действует free.
func (g *AccessGate) EffectivePlan(ctx context.Context, userID int64) (domain.Plan, error) {
	sub, err := g.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PlanFree, nil
		}
		return "", fmt.Errorf("access: failed to load subscription: %w", err)
	}

	return sub.Plan, nil
}

// FeatureList возвращает действующий тариф и список доступных возможностей
func (g *AccessGate) FeatureList(ctx context.Context, userID int64) (domain.Plan, []string, error) {
	plan, err := g.EffectivePlan(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	set, ok := planFeatures[plan]
	if !ok {
		set = planFeatures[domain.PlanFree]
	}

	features := make([]string, 0, len(set))
	for feature, enabled := range set {
		if enabled {
			features = append(features, feature)
		}
	}
	sort.Strings(features)

	return plan, features, nil
}

// HasFeature проверяет, доступна ли возможность пользователю
func (g *AccessGate) HasFeature(ctx context.Context, userID int64, feature string) (bool, error) {
	plan, err := g.EffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}

	features, ok := planFeatures[plan]
	if !ok {
		g.log.Warnw("Unknown plan in feature check, falling back to free", "plan", string(plan), "userID", userID)
		features = planFeatures[domain.PlanFree]
	}

	return features[feature], nil
}
