package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/handlers"
	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/config"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// Deps зависимости маршрутизатора
type Deps struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Auth     *services.AuthService
	Billing  *services.BillingService
	Gate     *services.AccessGate
	Users    repository.UserRepository
	Sessions repository.AssistSessionRepository
	Log      *logger.Logger
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	// Инициализация обработчиков
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Log)
	profileHandler := handlers.NewProfileHandler(deps.Users, deps.Log)
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Billing, deps.Log)
	tokenHandler := handlers.NewTokenHandler(deps.Auth, deps.Log)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Log)
	accessHandler := handlers.NewAccessHandler(deps.Gate, deps.Log)
	webhookHandler := handlers.NewWebhookHandler(deps.Billing, deps.Config.Stripe.WebhookSecret, deps.Log)

	requireAuth := middleware.RequireAuth(deps.Auth, deps.Users, deps.Log)

	api := r.Group("/api")
	{
		// Аутентификация
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
		}

		// Вебхук Stripe. Подпись в заголовке Stripe-Signature - единственная
		// проверка, Bearer-аутентификация здесь не применяется
		api.POST("/webhook/stripe", webhookHandler.HandleStripeWebhook)

		// Все остальное требует аутентификации
		authed := api.Group("")
		authed.Use(requireAuth)
		{
			authed.GET("/user/profile", profileHandler.GetProfile)
			authed.PATCH("/user/profile", profileHandler.UpdateProfile)
			authed.GET("/user/features", accessHandler.GetFeatures)

			authed.POST("/create-subscription", subscriptionHandler.CreateSubscription)
			authed.GET("/subscription/status", subscriptionHandler.GetStatus)
			authed.POST("/subscription/cancel", subscriptionHandler.Cancel)

			tokens := authed.Group("/tokens")
			{
				tokens.GET("", tokenHandler.ListTokens)
				tokens.POST("", tokenHandler.CreateToken)
				tokens.DELETE("/:id", tokenHandler.DeleteToken)
			}

			sessions := authed.Group("/sessions")
			{
				sessions.GET("", sessionHandler.ListSessions)
				sessions.POST("", sessionHandler.CreateSession)
			}
		}
	}

	return r
}
