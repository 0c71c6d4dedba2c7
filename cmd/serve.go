package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/controller"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/entity"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/events"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/factory"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/fallback"
	paymentgrpc "github.com/vibast-solutions/ms-go-payment-sessions/app/grpc"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/metrics"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/provider"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/repository"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/types"
	"github.com/vibast-solutions/ms-go-payment-sessions/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the payment sessions service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)
	grpcPaymentServer := paymentgrpc.NewServer(paymentService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(paymentController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, grpcPaymentServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": v.RequestID,
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

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	payments := e.Group("/payments")
	payments.GET("/config", paymentController.Config)
	payments.POST("/session", paymentController.CreateSession)
	payments.GET("/verify", paymentController.Verify)
	payments.Match([]string{http.MethodGet, http.MethodPost}, "/ipn", paymentController.ReceiveNotification)
	payments.Match([]string{http.MethodGet, http.MethodPost}, "/ipn/:provider", paymentController.ReceiveNotification)

	internal := e.Group("/internal", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(appServiceName))
	internal.GET("/orders/:id", paymentController.GetOrder)
	internal.GET("/notifications", paymentController.ListNotifications)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	paymentServer *paymentgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.RequestIDInterceptor(),
			paymentgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	paymentgrpc.RegisterPaymentSessionsServer(grpcSrv, paymentServer)

	return grpcSrv, lis
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

// mustCreateRecordStore opens the configured store and makes sure it is initialised.
func mustCreateRecordStore(cfg *config.Config) (repository.Store, func()) {
	if cfg.Store.Driver != config.StoreDriverMySQL {
		store := repository.NewFileStore(cfg.Store.DataDir, repository.KindOrders, repository.KindNotifications)
		if err := store.Init(context.Background()); err != nil {
			logrus.WithError(err).WithField("dir", cfg.Store.DataDir).Fatal("Failed to initialise file store")
		}
		return store, func() {}
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	store := repository.NewMySQLStore(db)
	if err := store.Init(context.Background()); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialise database store")
	}

	return store, func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg := mustLoadConfig()
	metrics.MustRegister(strings.ReplaceAll(cfg.App.ServiceName, "-", "_"), prometheus.DefaultRegisterer)

	store, closeStore := mustCreateRecordStore(cfg)
	orderRepo := repository.NewOrderRepository(store)
	notificationRepo := repository.NewNotificationRepository(store)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to parse REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logrus.WithError(err).Warn("Redis is unreachable, duplicate notification detection degraded")
		}
		cancel()
	}
	marker := repository.NewNotificationMarker(redisClient, cfg.Redis.MarkerTTL)

	var publisher interface {
		PublishNotification(ctx context.Context, record *entity.NotificationRecord) error
		Close()
	} = &events.NopPublisher{Logger: factory.NewModuleLogger("payments-events")}
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logrus.WithError(err).Warn("AMQP is unreachable, notification fan-out disabled")
		} else {
			publisher = amqpPublisher
		}
	}

	providers := []provider.Provider{provider.NewMockProvider()}
	if cfg.CardGateway.Enabled() {
		providers = append(providers, provider.NewCardGatewayProvider(provider.CardGatewayConfig{
			BaseURL:               cfg.CardGateway.BaseURL,
			ConsumerKey:           cfg.CardGateway.ConsumerKey,
			ConsumerSecret:        cfg.CardGateway.ConsumerSecret,
			HostedPageURL:         cfg.CardGateway.HostedPageURL,
			NotificationType:      cfg.CardGateway.NotificationType,
			DefaultNotificationID: cfg.CardGateway.DefaultNotificationID,
			TokenTTL:              cfg.CardGateway.TokenTTL,
			HTTPTimeout:           cfg.CardGateway.HTTPTimeout,
		}))
	} else {
		logrus.WithField("provider", provider.CardGatewayID).Warn("Provider credentials missing, provider disabled")
	}
	if cfg.PaymentSwitch.Enabled() {
		providers = append(providers, provider.NewPaymentSwitchProvider(provider.PaymentSwitchConfig{
			BaseURL:               cfg.PaymentSwitch.BaseURL,
			ClientID:              cfg.PaymentSwitch.ClientID,
			ClientSecret:          cfg.PaymentSwitch.ClientSecret,
			MerchantCode:          cfg.PaymentSwitch.MerchantCode,
			PayItemID:             cfg.PaymentSwitch.PayItemID,
			HostedPageURL:         cfg.PaymentSwitch.HostedPageURL,
			DefaultNotificationID: cfg.PaymentSwitch.DefaultNotificationID,
			TokenTTL:              cfg.PaymentSwitch.TokenTTL,
			HTTPTimeout:           cfg.PaymentSwitch.HTTPTimeout,
		}))
	} else {
		logrus.WithField("provider", provider.PaymentSwitchID).Warn("Provider credentials missing, provider disabled")
	}

	providerRegistry := provider.NewRegistry(providers...)
	tokenCache := provider.NewTokenCache(providerRegistry, factory.NewModuleLogger("payments-token-cache"), metrics.ObserveTokenFetch)

	paymentService := service.NewPaymentService(
		orderRepo,
		notificationRepo,
		marker,
		publisher,
		providerRegistry,
		tokenCache,
		fallback.NewRenderer(cfg.Payments.FallbackRedirectDelay),
		cfg.Payments,
	)

	cleanup := func() {
		paymentService.Wait()
		publisher.Close()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		closeStore()
	}

	return cfg, paymentService, cleanup
}
