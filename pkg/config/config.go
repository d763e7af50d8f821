package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Session  SessionConfig
	QRLogin  QRLoginConfig
	Scan     RemoteScanConfig
	Hub      HubConfig
	CORS     CORSConfig
	Log      LogConfig
	Cleanup  CleanupConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// SessionConfig tunes the session authority and device lifecycle policy.
type SessionConfig struct {
	// StoreTTL bounds the Redis session entries; refresh-token lifetime plus buffer.
	StoreTTL time.Duration
	// WebDeviceTTL is how long a web device survives without activity.
	WebDeviceTTL time.Duration
	// GracePeriod is the delay between announcing a revocation and enforcing it.
	GracePeriod time.Duration
	// RegisterRetries bounds the optimistic registration loop.
	RegisterRetries int
	RegisterBackoff time.Duration
	RefreshTokenTTL time.Duration
}

// QRLoginConfig tunes the QR login handshake.
type QRLoginConfig struct {
	TokenTTL time.Duration
}

// RemoteScanConfig tunes the desktop-initiated barcode scan pairing.
type RemoteScanConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

// HubConfig tunes the in-process connection registry.
type HubConfig struct {
	SendQueueSize int
	PingInterval  time.Duration
	WriteTimeout  time.Duration
}

// CleanupConfig tunes the expired-device housekeeping job.
type CleanupConfig struct {
	Interval time.Duration
	Workers  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Session = SessionConfig{
		StoreTTL:        parseDuration(v.GetString("SESSION_STORE_TTL"), 8*24*time.Hour),
		WebDeviceTTL:    parseDuration(v.GetString("WEB_DEVICE_TTL"), 30*24*time.Hour),
		GracePeriod:     parseDuration(v.GetString("FORCE_LOGOUT_GRACE_PERIOD"), 200*time.Millisecond),
		RegisterRetries: v.GetInt("DEVICE_REGISTER_RETRIES"),
		RegisterBackoff: parseDuration(v.GetString("DEVICE_REGISTER_BACKOFF"), 250*time.Millisecond),
		RefreshTokenTTL: parseDuration(v.GetString("REFRESH_TOKEN_TTL"), 7*24*time.Hour),
	}

	cfg.QRLogin = QRLoginConfig{
		TokenTTL: parseDuration(v.GetString("QR_TOKEN_TTL"), 120*time.Second),
	}

	cfg.Scan = RemoteScanConfig{
		Timeout:       parseDuration(v.GetString("REMOTE_SCAN_TIMEOUT"), 30*time.Second),
		SweepInterval: parseDuration(v.GetString("REMOTE_SCAN_SWEEP_INTERVAL"), 30*time.Second),
	}

	cfg.Hub = HubConfig{
		SendQueueSize: v.GetInt("HUB_SEND_QUEUE_SIZE"),
		PingInterval:  parseDuration(v.GetString("HUB_PING_INTERVAL"), 30*time.Second),
		WriteTimeout:  parseDuration(v.GetString("HUB_WRITE_TIMEOUT"), 5*time.Second),
	}

	cfg.Cleanup = CleanupConfig{
		Interval: parseDuration(v.GetString("DEVICE_CLEANUP_INTERVAL"), time.Hour),
		Workers:  v.GetInt("DEVICE_CLEANUP_WORKERS"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lumapos_sessions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("JWT_ISSUER", "lumapos-session-api")

	v.SetDefault("SESSION_STORE_TTL", "192h")
	v.SetDefault("WEB_DEVICE_TTL", "720h")
	v.SetDefault("FORCE_LOGOUT_GRACE_PERIOD", "200ms")
	v.SetDefault("DEVICE_REGISTER_RETRIES", 2)
	v.SetDefault("DEVICE_REGISTER_BACKOFF", "250ms")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")

	v.SetDefault("QR_TOKEN_TTL", "120s")

	v.SetDefault("REMOTE_SCAN_TIMEOUT", "30s")
	v.SetDefault("REMOTE_SCAN_SWEEP_INTERVAL", "30s")

	v.SetDefault("HUB_SEND_QUEUE_SIZE", 64)
	v.SetDefault("HUB_PING_INTERVAL", "30s")
	v.SetDefault("HUB_WRITE_TIMEOUT", "5s")

	v.SetDefault("DEVICE_CLEANUP_INTERVAL", "1h")
	v.SetDefault("DEVICE_CLEANUP_WORKERS", 1)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
