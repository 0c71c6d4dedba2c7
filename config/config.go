package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFile  = "file"
	StoreDriverMySQL = "mysql"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Log               LogConfig
	Store             StoreConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	AMQP              AMQPConfig
	InternalEndpoints InternalEndpointsConfig
	CardGateway       CardGatewayConfig
	PaymentSwitch     PaymentSwitchConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type LogConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Driver  string
	DataDir string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs the IPN duplicate-delivery marker. An empty URL disables it.
type RedisConfig struct {
	URL       string
	MarkerTTL time.Duration
}

// AMQPConfig backs IPN fan-out. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string
	Exchange string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type CardGatewayConfig struct {
	BaseURL               string
	ConsumerKey           string
	ConsumerSecret        string
	HostedPageURL         string
	NotificationType      string
	DefaultNotificationID string
	TokenTTL              time.Duration
	HTTPTimeout           time.Duration
}

// Enabled reports whether both credentials are present.
func (c CardGatewayConfig) Enabled() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" && strings.TrimSpace(c.ConsumerSecret) != ""
}

type PaymentSwitchConfig struct {
	BaseURL               string
	ClientID              string
	ClientSecret          string
	MerchantCode          string
	PayItemID             string
	HostedPageURL         string
	DefaultNotificationID string
	TokenTTL              time.Duration
	HTTPTimeout           time.Duration
}

func (c PaymentSwitchConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type PaymentsConfig struct {
	DefaultProvider       string
	CallbackBaseURL       string
	IPNURL                string
	PublicClientKey       string
	MockMode              bool
	DefaultDescription    string
	FallbackRedirectDelay time.Duration
	CorrelationTimeout    time.Duration
	AsyncCorrelation      bool
	ReconcileStaleAfter   time.Duration
	JobBatchSize          int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	callbackBaseURL := strings.TrimSpace(os.Getenv("PAYMENTS_CALLBACK_BASE_URL"))
	if callbackBaseURL == "" {
		return nil, errors.New("PAYMENTS_CALLBACK_BASE_URL environment variable is required")
	}

	storeDriver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile))
	mysqlDSN := os.Getenv("MYSQL_DSN")
	switch storeDriver {
	case StoreDriverFile:
	case StoreDriverMySQL:
		if mysqlDSN == "" {
			return nil, errors.New("MYSQL_DSN environment variable is required when STORE_DRIVER=mysql")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", storeDriver)
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payment-sessions-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Store: StoreConfig{
			Driver:  storeDriver,
			DataDir: getEnv("STORE_DATA_DIR", "data"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			MarkerTTL: getMinutesEnv("REDIS_NOTIFICATION_MARKER_TTL_MINUTES", 24*time.Hour),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "payments.notifications"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		CardGateway: CardGatewayConfig{
			BaseURL:               getEnv("CARD_GATEWAY_BASE_URL", "https://cybqa.pesapal.com/pesapalv3"),
			ConsumerKey:           getEnv("CARD_GATEWAY_CONSUMER_KEY", ""),
			ConsumerSecret:        getEnv("CARD_GATEWAY_CONSUMER_SECRET", ""),
			HostedPageURL:         getEnv("CARD_GATEWAY_HOSTED_PAGE_URL", ""),
			NotificationType:      strings.ToUpper(getEnv("CARD_GATEWAY_NOTIFICATION_TYPE", "POST")),
			DefaultNotificationID: getEnv("CARD_GATEWAY_DEFAULT_NOTIFICATION_ID", ""),
			TokenTTL:              getMinutesEnv("CARD_GATEWAY_TOKEN_TTL_MINUTES", 5*time.Minute),
			HTTPTimeout:           getSecondsEnv("CARD_GATEWAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		PaymentSwitch: PaymentSwitchConfig{
			BaseURL:               getEnv("PAYMENT_SWITCH_BASE_URL", "https://qa.interswitchng.com"),
			ClientID:              getEnv("PAYMENT_SWITCH_CLIENT_ID", ""),
			ClientSecret:          getEnv("PAYMENT_SWITCH_CLIENT_SECRET", ""),
			MerchantCode:          getEnv("PAYMENT_SWITCH_MERCHANT_CODE", ""),
			PayItemID:             getEnv("PAYMENT_SWITCH_PAY_ITEM_ID", ""),
			HostedPageURL:         getEnv("PAYMENT_SWITCH_HOSTED_PAGE_URL", ""),
			DefaultNotificationID: getEnv("PAYMENT_SWITCH_DEFAULT_NOTIFICATION_ID", ""),
			TokenTTL:              getMinutesEnv("PAYMENT_SWITCH_TOKEN_TTL_MINUTES", 30*time.Minute),
			HTTPTimeout:           getSecondsEnv("PAYMENT_SWITCH_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			DefaultProvider:       strings.ToLower(getEnv("PAYMENTS_DEFAULT_PROVIDER", "cardgateway")),
			CallbackBaseURL:       callbackBaseURL,
			IPNURL:                getEnv("PAYMENTS_IPN_URL", ""),
			PublicClientKey:       getEnv("PAYMENTS_PUBLIC_CLIENT_KEY", ""),
			MockMode:              getBoolEnv("PAYMENTS_MOCK_MODE", false),
			DefaultDescription:    getEnv("PAYMENTS_DEFAULT_DESCRIPTION", "Donation"),
			FallbackRedirectDelay: getMillisecondsEnv("PAYMENTS_FALLBACK_REDIRECT_DELAY_MS", 1500*time.Millisecond),
			CorrelationTimeout:    getSecondsEnv("PAYMENTS_CORRELATION_TIMEOUT_SECONDS", 15*time.Second),
			AsyncCorrelation:      getBoolEnv("PAYMENTS_ASYNC_CORRELATION", true),
			ReconcileStaleAfter:   getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:          int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
