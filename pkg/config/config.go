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

// Backends selectable for the document and account stores.
const (
	StoreBackendPostgres  = "postgres"
	StoreBackendFirestore = "firestore"

	AccountsBackendLocal    = "local"
	AccountsBackendFirebase = "firebase"

	MailProviderConsole  = "console"
	MailProviderSendgrid = "sendgrid"
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
	Registration  RegistrationConfig
	Store         StoreConfig
	Accounts      AccountsConfig
	Firebase      FirebaseConfig
	Notifications NotificationsConfig
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
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
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

// RegistrationConfig tunes the enrollment wizard rules.
type RegistrationConfig struct {
	MaxChildren          int
	MinPasswordLength    int
	MinStudentAge        int
	SyntheticEmailDomain string
	SessionTTL           time.Duration
	ApprovalRedirect     string
}

// StoreConfig selects the document store implementation.
type StoreConfig struct {
	Backend string
}

// AccountsConfig selects the account provider implementation.
type AccountsConfig struct {
	Backend string
}

// FirebaseConfig points at the Firebase project used by the firestore/firebase backends.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NotificationsConfig governs the asynchronous parent notifications.
type NotificationsConfig struct {
	Enabled        bool
	Provider       string
	SendgridAPIKey string
	FromEmail      string
	FromName       string
	Workers        int
	Retries        int
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
		Enabled:   v.GetBool("REDIS_ENABLED"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Registration = RegistrationConfig{
		MaxChildren:          positiveOr(v.GetInt("REGISTRATION_MAX_CHILDREN"), 5),
		MinPasswordLength:    positiveOr(v.GetInt("REGISTRATION_MIN_PASSWORD_LENGTH"), 6),
		MinStudentAge:        v.GetInt("REGISTRATION_MIN_STUDENT_AGE"),
		SyntheticEmailDomain: v.GetString("REGISTRATION_SYNTHETIC_EMAIL_DOMAIN"),
		SessionTTL:           parseDuration(v.GetString("REGISTRATION_SESSION_TTL"), 2*time.Hour),
		ApprovalRedirect:     v.GetString("REGISTRATION_APPROVAL_REDIRECT"),
	}

	cfg.Store = StoreConfig{Backend: strings.ToLower(v.GetString("STORE_BACKEND"))}
	cfg.Accounts = AccountsConfig{Backend: strings.ToLower(v.GetString("ACCOUNTS_BACKEND"))}

	cfg.Firebase = FirebaseConfig{
		ProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		CredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:        v.GetBool("ENABLE_NOTIFICATIONS"),
		Provider:       strings.ToLower(v.GetString("NOTIFICATIONS_PROVIDER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("NOTIFICATIONS_FROM_EMAIL"),
		FromName:       v.GetString("NOTIFICATIONS_FROM_NAME"),
		Workers:        positiveOr(v.GetInt("NOTIFICATIONS_WORKERS"), 1),
		Retries:        positiveOr(v.GetInt("NOTIFICATIONS_RETRIES"), 3),
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
	v.SetDefault("DB_NAME", "school_registration")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "registration:session:")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "school-registration")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REGISTRATION_MAX_CHILDREN", 5)
	v.SetDefault("REGISTRATION_MIN_PASSWORD_LENGTH", 6)
	v.SetDefault("REGISTRATION_MIN_STUDENT_AGE", 3)
	v.SetDefault("REGISTRATION_SYNTHETIC_EMAIL_DOMAIN", "studenti.scuola.local")
	v.SetDefault("REGISTRATION_SESSION_TTL", "2h")
	v.SetDefault("REGISTRATION_APPROVAL_REDIRECT", "/registration/pending-approval")

	v.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	v.SetDefault("ACCOUNTS_BACKEND", AccountsBackendLocal)
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATIONS_PROVIDER", MailProviderConsole)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFICATIONS_FROM_EMAIL", "segreteria@scuola.local")
	v.SetDefault("NOTIFICATIONS_FROM_NAME", "Segreteria")
	v.SetDefault("NOTIFICATIONS_WORKERS", 1)
	v.SetDefault("NOTIFICATIONS_RETRIES", 3)
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

// viper reports a missing explicit config file as a plain fs error rather than
// ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
