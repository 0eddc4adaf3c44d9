package repository

import (
	"context"
	"sync"
	"time"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// Реализации репозиториев в памяти. Используются в тестах вместо
// PostgreSQL и как запасной вариант для локального запуска без БД.

// InMemoryUserRepository реализация UserRepository в памяти
type InMemoryUserRepository struct {
	users  map[int64]domain.User
	nextID int64
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryUserRepository создает новый репозиторий пользователей в памяти
func NewInMemoryUserRepository(log *logger.Logger) *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[int64]domain.User),
		nextID: 1,
		log:    log,
	}
}

// Create создает нового пользователя
func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrDuplicate
		}
	}

	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user

	return nil
}

// GetByID возвращает пользователя по ID
func (r *InMemoryUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, ErrNotFound
	}

	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}

	return nil, ErrNotFound
}

// Update обновляет профиль пользователя
func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.users[user.ID]; !exists {
		return ErrNotFound
	}

	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user

	return nil
}

// SetStripeIDs сохраняет идентификаторы Stripe на пользователе
func (r *InMemoryUserRepository) SetStripeIDs(ctx context.Context, userID int64, customerID string, subscriptionID *string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, exists := r.users[userID]
	if !exists {
		return ErrNotFound
	}

	user.StripeCustomerID = &customerID
	if subscriptionID != nil {
		user.StripeSubscriptionID = subscriptionID
	}
	user.UpdatedAt = time.Now()
	r.users[userID] = user

	return nil
}

// InMemorySubscriptionRepository реализация SubscriptionRepository в памяти
type InMemorySubscriptionRepository struct {
	subscriptions map[int64]domain.Subscription
	nextID        int64
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[int64]domain.Subscription),
		nextID:        1,
		log:           log,
	}
}

// Create создает новую запись о подписке
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.subscriptions {
		if existing.StripeSubscriptionID == sub.StripeSubscriptionID {
			return ErrDuplicate
		}
	}

	sub.ID = r.nextID
	r.nextID++
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	r.subscriptions[sub.ID] = *sub

	return nil
}

// GetByUserID возвращает последнюю подписку пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var latest *domain.Subscription
	for _, sub := range r.subscriptions {
		if sub.UserID != userID {
			continue
		}
		s := sub
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) || (s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = &s
		}
	}

	if latest == nil {
		return nil, ErrNotFound
	}

	return latest, nil
}

// GetByStripeSubscriptionID возвращает подписку по внешнему ID
func (r *InMemorySubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subscriptions {
		if sub.StripeSubscriptionID == stripeSubID {
			s := sub
			return &s, nil
		}
	}

	return nil, ErrNotFound
}

// Update обновляет существующую подписку
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.subscriptions[sub.ID]; !exists {
		return ErrNotFound
	}

	sub.UpdatedAt = time.Now()
	r.subscriptions[sub.ID] = *sub

	return nil
}

// UpdateByStripeID перезаписывает синхронизируемые поля по внешнему ID
func (r *InMemorySubscriptionRepository) UpdateByStripeID(ctx context.Context, stripeSubID string, sync domain.SubscriptionSync) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, sub := range r.subscriptions {
		if sub.StripeSubscriptionID == stripeSubID {
			sub.Status = sync.Status
			sub.CurrentPeriodStart = sync.CurrentPeriodStart
			sub.CurrentPeriodEnd = sync.CurrentPeriodEnd
			sub.CancelAtPeriodEnd = sync.CancelAtPeriodEnd
			sub.UpdatedAt = time.Now()
			r.subscriptions[id] = sub
			return nil
		}
	}

	return ErrNotFound
}

// SetStatusByStripeID принудительно меняет статус по внешнему ID
func (r *InMemorySubscriptionRepository) SetStatusByStripeID(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, sub := range r.subscriptions {
		if sub.StripeSubscriptionID == stripeSubID {
			sub.Status = status
			sub.UpdatedAt = time.Now()
			r.subscriptions[id] = sub
			return nil
		}
	}

	return ErrNotFound
}

// Len возвращает число записей (для проверок в тестах)
func (r *InMemorySubscriptionRepository) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.subscriptions)
}

// InMemoryAPITokenRepository реализация APITokenRepository в памяти
type InMemoryAPITokenRepository struct {
	tokens map[int64]domain.APIToken
	nextID int64
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryAPITokenRepository создает новый репозиторий токенов в памяти
func NewInMemoryAPITokenRepository(log *logger.Logger) *InMemoryAPITokenRepository {
	return &InMemoryAPITokenRepository{
		tokens: make(map[int64]domain.APIToken),
		nextID: 1,
		log:    log,
	}
}

// Create создает новый токен
func (r *InMemoryAPITokenRepository) Create(ctx context.Context, token *domain.APIToken) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	token.ID = r.nextID
	r.nextID++
	token.CreatedAt = time.Now()
	r.tokens[token.ID] = *token

	return nil
}

// ListByUserID возвращает токены пользователя
func (r *InMemoryAPITokenRepository) ListByUserID(ctx context.Context, userID int64) ([]domain.APIToken, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var tokens []domain.APIToken
	for _, token := range r.tokens {
		if token.UserID == userID {
			tokens = append(tokens, token)
		}
	}

	return tokens, nil
}

// GetByToken возвращает токен по его значению
func (r *InMemoryAPITokenRepository) GetByToken(ctx context.Context, value string) (*domain.APIToken, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, token := range r.tokens {
		if token.Token == value {
			t := token
			return &t, nil
		}
	}

	return nil, ErrNotFound
}

// Touch отмечает момент последнего использования токена
func (r *InMemoryAPITokenRepository) Touch(ctx context.Context, id int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	token, exists := r.tokens[id]
	if !exists {
		return ErrNotFound
	}

	now := time.Now()
	token.LastUsed = &now
	r.tokens[id] = token

	return nil
}

// Delete удаляет токен пользователя
func (r *InMemoryAPITokenRepository) Delete(ctx context.Context, id, userID int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	token, exists := r.tokens[id]
	if !exists || token.UserID != userID {
		return ErrNotFound
	}

	delete(r.tokens, id)

	return nil
}

// InMemoryAssistSessionRepository реализация AssistSessionRepository в памяти
type InMemoryAssistSessionRepository struct {
	sessions map[int64]domain.AssistSession
	nextID   int64
	mutex    sync.RWMutex
	log      *logger.Logger
}

// NewInMemoryAssistSessionRepository создает новый репозиторий сеансов в памяти
func NewInMemoryAssistSessionRepository(log *logger.Logger) *InMemoryAssistSessionRepository {
	return &InMemoryAssistSessionRepository{
		sessions: make(map[int64]domain.AssistSession),
		nextID:   1,
		log:      log,
	}
}

// Create создает запись о сеансе
func (r *InMemoryAssistSessionRepository) Create(ctx context.Context, session *domain.AssistSession) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	session.ID = r.nextID
	r.nextID++
	session.CreatedAt = time.Now()
	r.sessions[session.ID] = *session

	return nil
}

// ListByUserID возвращает сеансы пользователя
func (r *InMemoryAssistSessionRepository) ListByUserID(ctx context.Context, userID int64) ([]domain.AssistSession, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var sessions []domain.AssistSession
	for _, session := range r.sessions {
		if session.UserID == userID {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}
