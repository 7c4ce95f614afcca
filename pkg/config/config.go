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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Sessions      SessionPolicyConfig
	Notifications NotificationConfig
	Storage       StorageConfig
	Analytics     AnalyticsConfig
	Reports       ReportsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionPolicyConfig holds the wall-clock policy applied to tutoring sessions.
type SessionPolicyConfig struct {
	UTCOffset         string
	ExpiryGraceDays   int
	EndingSoonLead    time.Duration
	SweepSchedule     string
	SweepEnabled      bool
	MorningBlockStart string
	MorningBlockEnd   string
	AfternoonStart    string
	AfternoonEnd      string
}

// NotificationConfig configures asynchronous notification delivery.
type NotificationConfig struct {
	Workers       int
	MaxRetries    int
	RetryDelay    time.Duration
	EmailEnabled  bool
	SendgridKey   string
	FromName      string
	FromAddress   string
	SubjectPrefix string
}

// StorageConfig selects the object store used for uploaded images.
type StorageConfig struct {
	CloudinaryURL    string
	CloudinaryFolder string
	LocalDir         string
	PublicBaseURL    string
	MaxUploadBytes   int64
}

// AnalyticsConfig governs cache behaviour for analytics endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// Location resolves the configured session offset into a fixed time zone.
func (c SessionPolicyConfig) Location() *time.Location {
	return ParseOffset(c.UTCOffset)
}

// ParseOffset converts "+08:00" style offsets into a fixed zone. Invalid input yields UTC.
func ParseOffset(raw string) *time.Location {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "UTC") || raw == "Z" {
		return time.UTC
	}
	t, err := time.Parse("-07:00", raw)
	if err != nil {
		return time.UTC
	}
	_, offset := t.Zone()
	return time.FixedZone("UTC"+raw, offset)
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionPolicyConfig{
		UTCOffset:         v.GetString("SESSION_UTC_OFFSET"),
		ExpiryGraceDays:   v.GetInt("SESSION_EXPIRY_GRACE_DAYS"),
		EndingSoonLead:    parseDuration(v.GetString("SESSION_ENDING_SOON_LEAD"), 10*time.Minute),
		SweepSchedule:     v.GetString("EXPIRY_SWEEP_SCHEDULE"),
		SweepEnabled:      v.GetBool("ENABLE_EXPIRY_SWEEP"),
		MorningBlockStart: v.GetString("SESSION_MORNING_START"),
		MorningBlockEnd:   v.GetString("SESSION_MORNING_END"),
		AfternoonStart:    v.GetString("SESSION_AFTERNOON_START"),
		AfternoonEnd:      v.GetString("SESSION_AFTERNOON_END"),
	}
	if cfg.Sessions.ExpiryGraceDays <= 0 {
		cfg.Sessions.ExpiryGraceDays = 3
	}

	cfg.Notifications = NotificationConfig{
		Workers:       v.GetInt("NOTIFY_WORKERS"),
		MaxRetries:    v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
		EmailEnabled:  v.GetBool("ENABLE_EMAIL_NOTIFICATIONS"),
		SendgridKey:   v.GetString("SENDGRID_API_KEY"),
		FromName:      v.GetString("EMAIL_FROM_NAME"),
		FromAddress:   v.GetString("EMAIL_FROM_ADDRESS"),
		SubjectPrefix: v.GetString("EMAIL_SUBJECT_PREFIX"),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		CloudinaryURL:    v.GetString("CLOUDINARY_URL"),
		CloudinaryFolder: v.GetString("CLOUDINARY_FOLDER"),
		LocalDir:         v.GetString("UPLOADS_DIR"),
		PublicBaseURL:    v.GetString("UPLOADS_PUBLIC_BASE_URL"),
		MaxUploadBytes:   maxUpload,
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "tutorhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSION_UTC_OFFSET", "+08:00")
	v.SetDefault("SESSION_EXPIRY_GRACE_DAYS", 3)
	v.SetDefault("SESSION_ENDING_SOON_LEAD", "10m")
	v.SetDefault("EXPIRY_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("ENABLE_EXPIRY_SWEEP", true)
	v.SetDefault("SESSION_MORNING_START", "08:00")
	v.SetDefault("SESSION_MORNING_END", "12:00")
	v.SetDefault("SESSION_AFTERNOON_START", "13:00")
	v.SetDefault("SESSION_AFTERNOON_END", "17:00")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
	v.SetDefault("ENABLE_EMAIL_NOTIFICATIONS", false)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "TutorHub")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@tutorhub.local")
	v.SetDefault("EMAIL_SUBJECT_PREFIX", "[TutorHub] ")

	v.SetDefault("CLOUDINARY_URL", "")
	v.SetDefault("CLOUDINARY_FOLDER", "tutorhub")
	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_PUBLIC_BASE_URL", "/uploads")
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1024*1024)

	v.SetDefault("ENABLE_ANALYTICS", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_REPORTS", true)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

// viper reports a missing explicit config file as a plain fs error.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
