package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintrack/finance-service/internal/command"
	"github.com/fintrack/finance-service/internal/config"
	"github.com/fintrack/finance-service/internal/database"
	"github.com/fintrack/finance-service/internal/events"
	"github.com/fintrack/finance-service/internal/handler"
	"github.com/fintrack/finance-service/internal/middleware"
	"github.com/fintrack/finance-service/internal/oauth"
	"github.com/fintrack/finance-service/internal/query"
	"github.com/fintrack/finance-service/internal/rabbitmq"
	"github.com/fintrack/finance-service/internal/reconcile"
	redisClient "github.com/fintrack/finance-service/internal/redis"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	middleware.MustInitJWTSecret(cfg.JWTSecret, cfg.JWTTTL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection (write store)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	// Redis connection (read model store, oauth state, event streaming)
	redis, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	publisher, closePublisher, err := newPublisher(cfg, redis)
	if err != nil {
		logger.Error("failed to set up event publisher", "broker", cfg.EventBroker, "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	// --- CQRS wiring ---
	store := repository.NewStore(db)

	userReadRepo := repository.NewUserReadRepository(store.Users(), redis.Client, cfg.CacheTTL())
	accountReadRepo := repository.NewAccountReadRepository(store.Accounts(), redis.Client, cfg.CacheTTL())
	transactionReadRepo := repository.NewTransactionReadRepository(store.Transactions(), redis.Client, cfg.CacheTTL())

	userCommands := command.NewUserCommandService(store, userReadRepo, accountReadRepo, transactionReadRepo, publisher)
	accountCommands := command.NewAccountCommandService(store, accountReadRepo, transactionReadRepo, publisher)
	transactionCommands := command.NewTransactionCommandService(store, transactionReadRepo, accountReadRepo, publisher)

	userQueries := query.NewUserQueryService(userReadRepo)
	authQueries := query.NewAuthQueryService(userReadRepo)
	accountQueries := query.NewAccountQueryService(accountReadRepo)
	transactionQueries := query.NewTransactionQueryService(transactionReadRepo, accountReadRepo)

	oauthService := oauth.NewService(
		oauth.NewRedisStateStore(redis.Client, cfg.OAuthStateTTL()),
		oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectBaseURL),
		oauth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.OAuthRedirectBaseURL),
	)

	authHandler := handler.NewAuthHandler(userCommands, authQueries)
	oauthHandler := handler.NewOAuthHandler(oauthService, userCommands)
	userHandler := handler.NewUserHandler(userCommands, userQueries)
	accountHandler := handler.NewAccountHandler(accountCommands, accountQueries)
	transactionHandler := handler.NewTransactionHandler(transactionCommands, transactionQueries)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.GET("/oauth", oauthHandler.ListProviders)
		auth.GET("/oauth/:provider", oauthHandler.Begin)
		auth.GET("/oauth/:provider/callback", oauthHandler.Callback)
	}

	users := router.Group("/v1/users", middleware.AuthMiddleware())
	{
		users.GET("/me", userHandler.GetCurrentUser)
		users.GET("/:userId", userHandler.GetUser)
		users.PUT("/:userId", userHandler.UpdateUser)
		users.DELETE("/:userId", userHandler.DeleteUser)
	}

	accounts := router.Group("/v1/accounts", middleware.AuthMiddleware())
	{
		accounts.POST("", accountHandler.CreateAccount)
		accounts.GET("", accountHandler.ListAccounts)
		accounts.GET("/active", accountHandler.ListActiveAccounts)
		accounts.GET("/:accountId", accountHandler.GetAccount)
		accounts.PUT("/:accountId", accountHandler.UpdateAccount)
		accounts.DELETE("/:accountId", accountHandler.DeleteAccount)
		accounts.POST("/:accountId/activate", accountHandler.ActivateAccount)
		accounts.POST("/:accountId/deactivate", accountHandler.DeactivateAccount)
	}

	transactions := router.Group("/v1/transactions", middleware.AuthMiddleware())
	{
		transactions.POST("", transactionHandler.CreateTransaction)
		transactions.GET("", transactionHandler.ListTransactions)
		transactions.GET("/account/:accountId", transactionHandler.ListAccountTransactions)
		transactions.GET("/:transactionId", transactionHandler.GetTransaction)
		transactions.PUT("/:transactionId", transactionHandler.UpdateTransaction)
		transactions.DELETE("/:transactionId", transactionHandler.DeleteTransaction)
	}

	// Account views are re-warmed from the stream only when events go through Redis.
	if cfg.EventBroker == config.BrokerRedis {
		go func() {
			subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
				Group:    "finance-service-group",
				Consumer: "account-view-consumer-1",
				Stream:   events.AccountEventsStream,
				Handler:  accountQueries.HandleAccountEvent,
			})
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("account event subscriber stopped", "error", err)
			}
		}()
	}

	scheduler := reconcile.NewScheduler(
		reconcile.NewJob(store, logger),
		logger,
		cfg.ReconcileSchedule,
	)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start reconciliation scheduler", "schedule", cfg.ReconcileSchedule, "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("finance service starting", "port", cfg.ServerPort, "broker", cfg.EventBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
}

// newPublisher picks the event transport named by EVENT_BROKER.
func newPublisher(cfg config.Config, redis *redisClient.Client) (events.Publisher, func(), error) {
	switch cfg.EventBroker {
	case config.BrokerRabbitMQ:
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
		if err != nil {
			return nil, nil, err
		}
		return producer, producer.Close, nil
	case config.BrokerNone:
		return events.NopPublisher{}, func() {}, nil
	default:
		return events.NewStreamPublisher(redis.Client), func() {}, nil
	}
}
