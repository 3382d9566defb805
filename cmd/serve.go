package cmd

import (
	"database/sql"
	"net"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-auth-api/app/controller"
	"go-auth-api/app/middleware"
	"go-auth-api/app/repository"
	"go-auth-api/app/service"
	"go-auth-api/config"
	"go-auth-api/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Run pending database migrations and start the HTTP (Echo) server.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	database, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	if err := db.Migrate(database); err != nil {
		logrus.WithError(err).Fatal("Failed to run database migrations")
	}

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	verificationRepo := repository.NewVerificationTokenRepository(database)
	productRepo := repository.NewProductRepository(database)

	hasher := service.NewPasswordHasher(cfg.Argon2)
	sessionService, err := service.NewSessionService(database, sessionRepo, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build session service")
	}
	verificationService := service.NewVerificationService(database, verificationRepo, cfg)
	emailSender := service.NewEmailSender(cfg.SMTP)
	authService := service.NewAuthService(database, userRepo, hasher, sessionService, verificationService, emailSender, cfg.FrontendURL)
	productService := service.NewProductService(productRepo)

	startHTTPServer(cfg, authService, sessionService, productService)
}

func startHTTPServer(
	cfg *config.Config,
	authService *service.AuthService,
	sessionService *service.SessionService,
	productService *service.ProductService,
) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	authController := controller.NewAuthController(authService)
	productController := controller.NewProductController(productService)
	userController := controller.NewUserController(authService)
	authMiddleware := middleware.NewAuthMiddleware(sessionService, authService)

	auth := e.Group("/auth")
	auth.POST("/signup", authController.Signup)
	auth.POST("/login", authController.Login)
	auth.POST("/refresh", authController.Refresh)
	auth.POST("/logout", authController.Logout)
	auth.POST("/forget-password", authController.ForgetPassword)
	auth.POST("/reset-password", authController.ResetPassword)
	auth.POST("/verify-email", authController.VerifyEmail)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.POST("/send-verification-email", authController.SendVerificationEmail)
	authProtected.POST("/change-password", authController.ChangePassword)
	authProtected.GET("/me", authController.Me)
	authProtected.PATCH("/me", authController.UpdateProfile)
	authProtected.GET("/sessions", authController.ListSessions)
	authProtected.DELETE("/sessions/:id", authController.RevokeSession)

	products := e.Group("/products")
	products.Use(authMiddleware.RequireAuth)
	products.POST("", productController.Create)
	products.GET("", productController.List)
	products.GET("/:id", productController.Get)
	products.PATCH("/:id", productController.Update)
	products.DELETE("", productController.Delete)

	users := e.Group("/users")
	users.Use(authMiddleware.RequireAuth, authMiddleware.RequireAdmin)
	users.GET("", userController.List)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}
