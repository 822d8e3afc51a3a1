package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Krish-Depani/customer-auth-service/controllers"
	"github.com/Krish-Depani/customer-auth-service/middleware"
	"github.com/Krish-Depani/customer-auth-service/registry"
)

type Options struct {
	Loader      registry.Loader
	HTTPMetrics *middleware.HTTPMetrics
	// Gatherer backs /metrics. The endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, authController *controllers.AuthController, userController *controllers.UserController, opts Options) {
	router.Use(opts.HTTPMetrics.Handler(), middleware.IdentityCache(opts.Loader))

	router.GET("/healthz", controllers.Health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	customer := router.Group("/customer")
	{
		customer.POST("/register", authController.Register)
		customer.POST("/login", authController.Login)
		customer.POST("/logout", authController.AuthMiddleware(), authController.Logout)
		customer.GET("/confirm", authController.Confirm)
		customer.POST("/confirm/resend", authController.ResendConfirmation)
		customer.POST("/forgot-password", authController.ForgotPassword)
		customer.POST("/reset-password", authController.ResetPassword)
		customer.POST("/magic-link", authController.MagicLink)
		customer.GET("/verify", authController.Verify)
		customer.GET("/check", authController.Check)
	}

	me := router.Group("/customer/me", authController.AuthMiddleware())
	{
		me.GET("", userController.GetCurrentUser)
		me.PUT("", userController.UpdateCurrentUser)
		me.GET("/sessions", userController.GetActiveSessions)
	}
}
