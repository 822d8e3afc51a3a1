package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/auth"
	"github.com/Krish-Depani/customer-auth-service/config"
	"github.com/Krish-Depani/customer-auth-service/controllers"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/middleware"
	"github.com/Krish-Depani/customer-auth-service/routes"
	"github.com/Krish-Depani/customer-auth-service/services"
	"github.com/Krish-Depani/customer-auth-service/throttle"
	"github.com/Krish-Depani/customer-auth-service/tokens"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatal("Error loading config:", err)
	}

	zlog, err := logger.New(env.AppEnv)
	if err != nil {
		log.Fatal("Error building logger:", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, env, zlog); err != nil {
		zlog.Fatal("service stopped", zap.Error(err))
	}
}

func run(ctx context.Context, env *config.Env, zlog *zap.Logger) error {
	pgClient, err := database.NewPostgresClient(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(pgClient); err != nil {
		return err
	}

	redisClient, err := database.GetRedisClient(env.RedisAddr, env.RedisPass, env.RedisDB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	var downstream events.Publisher = events.NewLogPublisher(zlog)
	if len(env.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(env.KafkaBrokers, env.KafkaTopicPrefix, zlog)
		if err != nil {
			return err
		}
		defer kafka.Close()
		downstream = kafka
	}
	bus := events.NewBus(downstream, zlog)

	users := database.NewUserStore(pgClient)
	bus.Subscribe(events.CustomerAuthenticated, auth.LastLoginListener(users, zlog))

	limiter := throttle.New(throttle.NewRedisStore(redisClient.Client, ""), map[throttle.UserType]throttle.Limit{
		throttle.UserTypeCustomer:      {MaxAttempts: env.LoginMaxAttempts, Window: env.LoginWindow},
		throttle.UserTypePasswordReset: {MaxAttempts: env.PasswordResetMaxAttempts, Window: env.PasswordResetWindow},
		throttle.UserTypeMagicLink:     {MaxAttempts: env.PasswordResetMaxAttempts, Window: env.PasswordResetWindow},
	})

	issuer := tokens.NewIssuer(pgClient, redisClient, env.JWTSecret, env.JWTIssuer, env.SessionTTL)
	issuer.Logger = zlog

	credentials := auth.NewCredentialStore(users, env.LockoutThreshold, env.LockoutDuration)
	google := auth.ProviderConfig{ClientID: env.GoogleClientID, ClientSecret: env.GoogleClientSecret, UserInfoURL: env.GoogleUserInfoURL}
	apple := auth.ProviderConfig{ClientID: env.AppleClientID, ClientSecret: env.AppleClientSecret, UserInfoURL: env.AppleUserInfoURL}
	strategies := auth.NewStrategies(credentials, redisClient, google, apple)
	for _, tag := range []string{auth.StrategyGoogle, auth.StrategyApple} {
		if provider, ok := strategies[tag].(*auth.OAuthAuthenticator); ok && !provider.Configured() {
			zlog.Warn("social login provider is not configured; logins with it will fail", zap.String("strategy", tag))
		}
	}

	pipeline := auth.NewPipeline(auth.PipelineConfig{
		Strategies:      strategies,
		Throttle:        limiter,
		Tokens:          issuer,
		Events:          bus,
		Remember:        auth.NewRememberMe(redisClient, issuer, env.RememberMeTTL),
		Logger:          zlog,
		ConfirmationURL: strings.TrimRight(env.BaseURL, "/") + "/customer/confirm/resend",
	})
	defer pipeline.Wait()

	accounts := services.NewAccountService(users, issuer, redisClient, limiter, bus, zlog, services.Options{
		BaseURL:             env.BaseURL,
		RequireConfirmation: env.RequireConfirmation,
		PasswordMinLength:   env.PasswordMinLength,
		ResetTokenTTL:       env.ResetTokenTTL,
		MagicLinkTTL:        env.MagicLinkTTL,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: reg})
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	loginMetrics, err := middleware.NewLoginMetrics(reg)
	if err != nil {
		return fmt.Errorf("register login metrics: %w", err)
	}

	authController := controllers.NewAuthController(controllers.AuthControllerConfig{
		Pipeline:         pipeline,
		Accounts:         accounts,
		Issuer:           issuer,
		Loader:           users,
		Metrics:          loginMetrics,
		Logger:           zlog,
		DefaultWebsiteID: env.DefaultWebsiteID,
		SessionTTL:       env.SessionTTL,
	})
	userController := controllers.NewUserController(accounts, users, zlog)

	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(zlog))
	routes.SetupRoutes(r, authController, userController, routes.Options{
		Loader:      users,
		HTTPMetrics: httpMetrics,
		Gatherer:    reg,
	})

	srv := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	zlog.Info("starting customer auth service",
		zap.String("env", env.AppEnv),
		zap.String("address", srv.Addr),
		zap.Strings("strategies", pipeline.Strategies()),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
