package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

const (
	CookieBackendEnv   = "env"
	CookieBackendRedis = "redis"
)

// Config holds all configuration for the auth service
type Config struct {
	Service     ServiceConfig
	Logging     LoggingConfig
	Browser     BrowserConfig
	QRLogin     QRLoginConfig
	CookieStore CookieStoreConfig
	Platform    PlatformConfig
	Kafka       KafkaConfig
	Database    DatabaseConfig
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name    string
	Port    string
	EnvFile string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// BrowserConfig holds headless browser configuration
type BrowserConfig struct {
	Bin               string // empty means auto-download
	Headless          bool
	UserAgent         string
	HomeURL           string
	LoginURL          string
	NavigationTimeout time.Duration
	LocatorTimeout    time.Duration
	QRLocatorTimeout  time.Duration
}

// QRLoginConfig holds QR login session configuration
type QRLoginConfig struct {
	SessionTTL      time.Duration
	SetupTimeout    time.Duration
	PollTimeout     time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	MaxSessions     int
	StartRate       float64 // sessions per second
	StartBurst      int
}

// CookieStoreConfig holds credential storage configuration
type CookieStoreConfig struct {
	Backend       string // "env" or "redis"
	EnvPath       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// PlatformConfig holds configuration of the platform API used to verify credentials
type PlatformConfig struct {
	BaseURL         string
	UserAgent       string
	Timeout         time.Duration
	RequiredCookies []string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers                []string // empty disables publishing
	TopicCredentialUpdated string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string // empty keeps login history in memory
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config            *Config
	ServiceConfig     *ServiceConfig
	LoggingConfig     *LoggingConfig
	BrowserConfig     *BrowserConfig
	QRLoginConfig     *QRLoginConfig
	CookieStoreConfig *CookieStoreConfig
	PlatformConfig    *PlatformConfig
	KafkaConfig       *KafkaConfig
	DatabaseConfig    *DatabaseConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:            cfg,
		ServiceConfig:     &cfg.Service,
		LoggingConfig:     &cfg.Logging,
		BrowserConfig:     &cfg.Browser,
		QRLoginConfig:     &cfg.QRLogin,
		CookieStoreConfig: &cfg.CookieStore,
		PlatformConfig:    &cfg.Platform,
		KafkaConfig:       &cfg.Kafka,
		DatabaseConfig:    &cfg.Database,
	}, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Load loads configuration from environment variables.
// The env file named by ENV_FILE (default .env) is loaded first if it exists.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	_ = godotenv.Load(envFile)

	cfg := &Config{
		Service: ServiceConfig{
			Name:    getEnv("SERVICE_NAME", "auth-service"),
			Port:    getEnv("SERVICE_PORT", "8000"),
			EnvFile: envFile,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Browser: BrowserConfig{
			Bin:               getEnv("BROWSER_BIN", ""),
			Headless:          getEnvBool("BROWSER_HEADLESS", true),
			UserAgent:         getEnv("BROWSER_USER_AGENT", defaultUserAgent),
			HomeURL:           getEnv("BROWSER_HOME_URL", "https://www.douyin.com/"),
			LoginURL:          getEnv("BROWSER_LOGIN_URL", "https://www.douyin.com/passport/web/login/"),
			NavigationTimeout: getEnvDuration("BROWSER_NAVIGATION_TIMEOUT", 30*time.Second),
			LocatorTimeout:    getEnvDuration("BROWSER_LOCATOR_TIMEOUT", 3*time.Second),
			QRLocatorTimeout:  getEnvDuration("BROWSER_QR_LOCATOR_TIMEOUT", 5*time.Second),
		},
		QRLogin: QRLoginConfig{
			SessionTTL:      getEnvDuration("QR_SESSION_TTL", 5*time.Minute),
			SetupTimeout:    getEnvDuration("QR_SETUP_TIMEOUT", 60*time.Second),
			PollTimeout:     getEnvDuration("QR_POLL_TIMEOUT", 5*time.Second),
			Retention:       getEnvDuration("QR_RETENTION", 10*time.Minute),
			CleanupInterval: getEnvDuration("QR_CLEANUP_INTERVAL", 30*time.Second),
			MaxSessions:     getEnvInt("QR_MAX_SESSIONS", 5),
			StartRate:       getEnvFloat("QR_START_RATE", 0.2),
			StartBurst:      getEnvInt("QR_START_BURST", 3),
		},
		CookieStore: CookieStoreConfig{
			Backend:       getEnv("COOKIE_STORE_BACKEND", CookieBackendEnv),
			EnvPath:       getEnv("COOKIE_ENV_PATH", envFile),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisKey:      getEnv("REDIS_COOKIE_KEY", "douyin:cookie"),
		},
		Platform: PlatformConfig{
			BaseURL:         strings.TrimRight(getEnv("PLATFORM_BASE_URL", "https://www.douyin.com"), "/"),
			UserAgent:       getEnv("PLATFORM_USER_AGENT", defaultUserAgent),
			Timeout:         getEnvDuration("PLATFORM_TIMEOUT", 10*time.Second),
			RequiredCookies: getEnvList("PLATFORM_REQUIRED_COOKIES", []string{"sessionid", "s_v_web_id"}),
		},
		Kafka: KafkaConfig{
			Brokers:                getEnvList("KAFKA_BROKERS", nil),
			TopicCredentialUpdated: getEnv("KAFKA_TOPIC_CREDENTIAL_UPDATED", "auth.credential.updated"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DATABASE_HOST", ""),
			Port:     getEnv("DATABASE_PORT", "5432"),
			User:     getEnv("DATABASE_USER", "auth_user"),
			Password: getEnv("DATABASE_PASSWORD", "auth_pass"),
			DBName:   getEnv("DATABASE_NAME", "auth_db"),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Service.Port == "" {
		return fmt.Errorf("SERVICE_PORT is required")
	}

	if c.QRLogin.SessionTTL <= 0 {
		return fmt.Errorf("QR_SESSION_TTL must be positive")
	}

	if c.QRLogin.SetupTimeout <= 0 || c.QRLogin.PollTimeout <= 0 {
		return fmt.Errorf("QR_SETUP_TIMEOUT and QR_POLL_TIMEOUT must be positive")
	}

	if c.QRLogin.Retention <= 0 {
		return fmt.Errorf("QR_RETENTION must be positive")
	}

	if c.QRLogin.MaxSessions <= 0 {
		return fmt.Errorf("QR_MAX_SESSIONS must be positive")
	}

	switch c.CookieStore.Backend {
	case CookieBackendEnv:
		if c.CookieStore.EnvPath == "" {
			return fmt.Errorf("COOKIE_ENV_PATH is required")
		}
	case CookieBackendRedis:
		if c.CookieStore.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	default:
		return fmt.Errorf("unknown COOKIE_STORE_BACKEND %q", c.CookieStore.Backend)
	}

	if c.Platform.BaseURL == "" {
		return fmt.Errorf("PLATFORM_BASE_URL is required")
	}

	return nil
}

// Enabled reports whether login history goes to Postgres
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvInt gets environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvBool gets environment variable as bool with default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
