package config

import (
	"errors"
	"io/fs"
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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Attendance   AttendanceConfig
	QR           QRConfig
	Notification NotificationConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig controls calendar-day normalisation.
type AttendanceConfig struct {
	UTCOffset time.Duration
}

// QRConfig tunes self check-in sessions and scan throttling.
type QRConfig struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	CodeAttempts    int
	ScanRateLimit   int
	ScanRateWindow  time.Duration
}

// NotificationConfig configures guardian notification delivery.
type NotificationConfig struct {
	Enabled          bool
	Concurrency      int
	BatchPause       time.Duration
	SendTimeout      time.Duration
	ShutdownTimeout  time.Duration
	LineChannelToken string
	LineAPIEndpoint  string
	LineNotifyURL    string
	SchoolName       string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		UTCOffset: parseDuration(v.GetString("ATTENDANCE_UTC_OFFSET"), 7*time.Hour),
	}

	cfg.QR = QRConfig{
		DefaultDuration: parseDuration(v.GetString("QR_DEFAULT_DURATION"), 5*time.Minute),
		MaxDuration:     parseDuration(v.GetString("QR_MAX_DURATION"), 60*time.Minute),
		CodeAttempts:    positiveOr(v.GetInt("QR_CODE_ATTEMPTS"), 5),
		ScanRateLimit:   v.GetInt("QR_SCAN_RATE_LIMIT"),
		ScanRateWindow:  parseDuration(v.GetString("QR_SCAN_RATE_WINDOW"), time.Minute),
	}

	cfg.Notification = NotificationConfig{
		Enabled:          v.GetBool("NOTIFY_ENABLED"),
		Concurrency:      positiveOr(v.GetInt("NOTIFY_CONCURRENCY"), 5),
		BatchPause:       parseDuration(v.GetString("NOTIFY_BATCH_PAUSE"), time.Second),
		SendTimeout:      parseDuration(v.GetString("NOTIFY_SEND_TIMEOUT"), 10*time.Second),
		ShutdownTimeout:  parseDuration(v.GetString("NOTIFY_SHUTDOWN_TIMEOUT"), 15*time.Second),
		LineChannelToken: v.GetString("LINE_CHANNEL_ACCESS_TOKEN"),
		LineAPIEndpoint:  v.GetString("LINE_API_ENDPOINT"),
		LineNotifyURL:    v.GetString("LINE_NOTIFY_URL"),
		SchoolName:       v.GetString("SCHOOL_NAME"),
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
	v.SetDefault("DB_NAME", "school_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sma-attendance-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_UTC_OFFSET", "7h")

	v.SetDefault("QR_DEFAULT_DURATION", "5m")
	v.SetDefault("QR_MAX_DURATION", "60m")
	v.SetDefault("QR_CODE_ATTEMPTS", 5)
	v.SetDefault("QR_SCAN_RATE_LIMIT", 10)
	v.SetDefault("QR_SCAN_RATE_WINDOW", "1m")

	v.SetDefault("NOTIFY_ENABLED", true)
	v.SetDefault("NOTIFY_CONCURRENCY", 5)
	v.SetDefault("NOTIFY_BATCH_PAUSE", "1s")
	v.SetDefault("NOTIFY_SEND_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LINE_CHANNEL_ACCESS_TOKEN", "")
	v.SetDefault("LINE_API_ENDPOINT", "https://api.line.me")
	v.SetDefault("LINE_NOTIFY_URL", "https://notify-api.line.me/api/notify")
	v.SetDefault("SCHOOL_NAME", "")
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
