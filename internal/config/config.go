package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-provided setting of the push service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Push     PushConfig
	Reminder ReminderConfig
	LogLevel string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BackendConfig describes the hosted backend whose credentials gate the
// HTTP surface.
type BackendConfig struct {
	URL            string
	ServiceRoleKey string
	AnonKey        string
	JWTSecret      string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	MaxConcurrency  int
	RestrictTargets bool
}

type ReminderConfig struct {
	Timezone     string
	TriggerURL   string
	CronSchedule string
}

const (
	DefaultSubject      = "mailto:contato@jovens.app"
	DefaultTimezone     = "America/Sao_Paulo"
	DefaultCronSchedule = "* * * * *"
)

// Load reads an optional .env file and builds the configuration from the
// environment.
func Load() *Config {
	// Missing .env is normal in deployed environments.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Backend: BackendConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		},
		Push: PushConfig{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subject:         getEnv("VAPID_SUBJECT", DefaultSubject),
			MaxConcurrency:  getEnvAsInt("PUSH_MAX_CONCURRENCY", 0),
			RestrictTargets: getEnvAsBool("PUSH_RESTRICT_TARGETS", false),
		},
		Reminder: ReminderConfig{
			Timezone:     getEnv("REMINDER_TIMEZONE", DefaultTimezone),
			TriggerURL:   getEnv("REMINDER_TRIGGER_URL", "http://localhost:8080/api/push/reminders/run"),
			CronSchedule: getEnv("REMINDER_CRON_SCHEDULE", DefaultCronSchedule),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports settings the HTTP server cannot run without. VAPID keys
// are deliberately absent: without them push degrades to in-app only.
func (c *Config) Validate(inMemory bool) error {
	var errs []error
	if c.Backend.ServiceRoleKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is required"))
	}
	if c.Backend.JWTSecret == "" && (c.Backend.URL == "" || c.Backend.AnonKey == "") {
		errs = append(errs, errors.New("either SUPABASE_JWT_SECRET or SUPABASE_URL and SUPABASE_ANON_KEY are required"))
	}
	if !inMemory && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Push.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("PUSH_MAX_CONCURRENCY must not be negative, got %d", c.Push.MaxConcurrency))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
