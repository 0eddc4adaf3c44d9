package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest"
	"github.com/kovalevn/cognitive-copilot/internal/config"
	"github.com/kovalevn/cognitive-copilot/internal/db"
	"github.com/kovalevn/cognitive-copilot/internal/kafka"
	"github.com/kovalevn/cognitive-copilot/internal/metrics"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/internal/stripe"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем логгер
	log := initLogger()

	log.Infow("Cognitive Copilot backend starting up...")

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatalw("JWT secret is not set")
	}
	if cfg.Stripe.APIKey == "" || cfg.Stripe.WebhookSecret == "" {
		log.Warnw("Stripe API key or webhook secret is not set, billing will not work")
	}
	if len(cfg.Plans) == 0 {
		log.Warnw("Plan catalog is empty, subscription creation will be rejected")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Пул pgx для репозиториев пользователей и подписок
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalw("Failed to create database pool", "error", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("Failed to ping database", "error", err)
	}
	log.Infow("Database connection established")

	// Соединение sqlx для репозиториев токенов и сеансов
	dbClient, err := db.NewDBClient(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database via sqlx", "error", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Errorw("Error closing database connection", "error", err)
		}
	}()

	// Инициализируем Redis кеш
	redisCache, err := repository.NewRedisCacheRepository(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		log,
	)
	if err != nil {
		// Не фатально, но предупреждаем
		log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		redisCache = nil
	} else {
		log.Infow("Redis cache initialized successfully")
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Errorw("Error closing Redis connection", "error", err)
			}
		}()
	}

	// Репозитории
	userRepo := repository.NewPostgresUserRepository(pool, log)
	baseSubRepo := repository.NewPostgresSubscriptionRepository(pool, log)

	var subscriptionRepo repository.SubscriptionRepository
	if redisCache != nil {
		subscriptionRepo = repository.NewCachedSubscriptionRepository(baseSubRepo, redisCache, log)
		log.Infow("Using cached subscription repository")
	} else {
		subscriptionRepo = baseSubRepo
		log.Infow("Using non-cached subscription repository")
	}

	tokenRepo := repository.NewSQLAPITokenRepository(dbClient.DB(), log)
	sessionRepo := repository.NewSQLAssistSessionRepository(dbClient.DB(), log)

	// Инициализируем клиент Stripe
	stripeClient := stripe.NewStripeClient(cfg.Stripe.APIKey, log)

	// Инициализируем Kafka Producer
	kafkaProducer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Warnw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		kafkaProducer = nil
	} else {
		log.Infow("Kafka producer initialized")
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				log.Errorw("Error closing Kafka producer", "error", err)
			}
		}()
	}

	// Метрики
	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	// Сервисы
	authService := services.NewAuthService(userRepo, tokenRepo, cfg.Auth.JWTSecret, log)
	billingService := services.NewBillingService(
		userRepo,
		subscriptionRepo,
		stripeClient,
		kafkaProducer,
		billingMetrics,
		services.NewPlanCatalog(cfg.Plans),
		log,
	)
	accessGate := services.NewAccessGate(subscriptionRepo, log)

	// Маршрутизатор
	router := rest.SetupRouter(rest.Deps{
		Config:   cfg,
		Registry: registry,
		Auth:     authService,
		Billing:  billingService,
		Gate:     accessGate,
		Users:    userRepo,
		Sessions: sessionRepo,
		Log:      log,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем HTTP сервер в горутине
	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	// Даем 10 секунд на завершение текущих запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Cleanup finished. Goodbye!")
}

// initLogger инициализирует новый логгер
func initLogger() *logger.Logger {
	logLevel := logger.INFO
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = logger.DEBUG
	}
	return logger.New(logLevel)
}
