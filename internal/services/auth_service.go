package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

const (
	// Срок жизни сессионного JWT
	jwtTTL = 30 * 24 * time.Hour

	// Длина API токена в байтах до hex-кодирования
	apiTokenBytes = 32
)

// AuthService отвечает за регистрацию, вход и проверку токенов.
type AuthService struct {
	users     repository.UserRepository
	apiTokens repository.APITokenRepository
	jwtSecret []byte
	log       *logger.Logger
}

// NewAuthService создает новый сервис аутентификации
func NewAuthService(
	users repository.UserRepository,
	apiTokens repository.APITokenRepository,
	jwtSecret string,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		apiTokens: apiTokens,
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
}

// SignupInput данные регистрации нового пользователя
type SignupInput struct {
	Name     string
	Email    string
	Password string
	JobRole  *string
	Company  *string
}

// Signup регистрирует нового пользователя и сразу выдает сессионный токен.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Errorw("Failed to hash password", "error", err)
		return nil, "", fmt.Errorf("auth: failed to hash password: %w", err)
	}

	user := &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		JobRole:      in.JobRole,
		Company:      in.Company,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Warnw("Signup attempt with existing email", "email", in.Email)
			return nil, "", domain.NewDuplicateError("user", "email", in.Email)
		}
		s.log.Errorw("Failed to create user", "error", err, "email", in.Email)
		return nil, "", fmt.Errorf("auth: failed to create user: %w", err)
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.log.Infow("User registered", "userID", user.ID, "email", in.Email)
	return user, token, nil
}

// Login проверяет учетные данные и выдает сессионный токен.
// Несуществующий email и неверный пароль неразличимы для клиента.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Login attempt with unknown email", "email", email)
			return nil, "", domain.ErrInvalidCredentials
		}
		s.log.Errorw("Failed to look up user by email", "error", err, "email", email)
		return nil, "", fmt.Errorf("auth: failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Warnw("Login attempt with wrong password", "userID", user.ID)
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.log.Infow("User logged in", "userID", user.ID)
	return user, token, nil
}

// IssueToken выдает подписанный JWT для пользователя
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"iat": now.Unix(),
		"exp": now.Add(jwtTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.log.Errorw("Failed to sign JWT", "error", err, "userID", userID)
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken проверяет сессионный JWT и возвращает ID пользователя
func (s *AuthService) VerifyToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, domain.ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, domain.ErrUnauthenticated
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, domain.ErrUnauthenticated
	}

	var userID int64
	if _, err := fmt.Sscanf(sub, "%d", &userID); err != nil || userID <= 0 {
		return 0, domain.ErrUnauthenticated
	}

	return userID, nil
}

// CreateAPIToken выдает долгоживущий токен для десктопного клиента.
// Значение токена показывается клиенту один раз при создании.
func (s *AuthService) CreateAPIToken(ctx context.Context, userID int64, name string) (*domain.APIToken, error) {
	raw := make([]byte, apiTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		s.log.Errorw("Failed to generate API token", "error", err, "userID", userID)
		return nil, fmt.Errorf("auth: failed to generate token: %w", err)
	}

	token := &domain.APIToken{
		UserID: userID,
		Token:  hex.EncodeToString(raw),
		Name:   name,
	}

	if err := s.apiTokens.Create(ctx, token); err != nil {
		s.log.Errorw("Failed to store API token", "error", err, "userID", userID)
		return nil, fmt.Errorf("auth: failed to store token: %w", err)
	}

	s.log.Infow("API token created", "userID", userID, "tokenID", token.ID, "name", name)
	return token, nil
}

// VerifyAPIToken проверяет токен десктопного клиента и возвращает владельца.
// Момент последнего использования обновляется при каждой успешной проверке.
func (s *AuthService) VerifyAPIToken(ctx context.Context, value string) (*domain.User, error) {
	token, err := s.apiTokens.GetByToken(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		s.log.Errorw("Failed to look up API token", "error", err)
		return nil, fmt.Errorf("auth: failed to look up token: %w", err)
	}

	if err := s.apiTokens.Touch(ctx, token.ID); err != nil {
		// Не фатально, проверка токена уже прошла
		s.log.Warnw("Failed to update token last used timestamp", "error", err, "tokenID", token.ID)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		s.log.Errorw("Failed to load token owner", "error", err, "userID", token.UserID)
		return nil, fmt.Errorf("auth: failed to load token owner: %w", err)
	}

	return user, nil
}

// ListAPITokens возвращает токены пользователя
func (s *AuthService) ListAPITokens(ctx context.Context, userID int64) ([]domain.APIToken, error) {
	tokens, err := s.apiTokens.ListByUserID(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to list API tokens", "error", err, "userID", userID)
		return nil, fmt.Errorf("auth: failed to list tokens: %w", err)
	}
	return tokens, nil
}

// DeleteAPIToken удаляет токен пользователя
func (s *AuthService) DeleteAPIToken(ctx context.Context, tokenID, userID int64) error {
	if err := s.apiTokens.Delete(ctx, tokenID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewNotFoundError("api token", fmt.Sprintf("%d", tokenID))
		}
		s.log.Errorw("Failed to delete API token", "error", err, "tokenID", tokenID, "userID", userID)
		return fmt.Errorf("auth: failed to delete token: %w", err)
	}

	s.log.Infow("API token deleted", "tokenID", tokenID, "userID", userID)
	return nil
}
