// Package config loads application configuration from environment variables,
// optionally seeded from a .env file in the working directory.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env             string        // APP_ENV (development, test, production)
	Port            string        // APP_PORT
	DBUser          string        // DB_USER
	DBPass          string        // DB_PASS (optional)
	DBHost          string        // DB_HOST
	DBPort          string        // DB_PORT
	DBName          string        // DB_NAME
	JWTSecret       string        // JWT_SECRET, HMAC key for bearer tokens
	JWTTTL          time.Duration // JWT_TTL, bearer token lifetime
	BcryptCost      int           // BCRYPT_COST
	VerificationTTL time.Duration // VERIFICATION_TTL, email/first-login verification tokens
	ResetTTL        time.Duration // PASSWORD_RESET_TTL
	TokenGCInterval time.Duration // TOKEN_GC_INTERVAL, 0 disables the sweeper
	PublicBaseURL   string        // PUBLIC_BASE_URL, used to build links in emails
	AdminEmails     []string      // ADMIN_EMAILS, comma separated allowlist for /usuarios admin routes
	CORSOrigins     []string      // CORS_ORIGINS, comma separated
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT
	// SendVerificationOnRegister controls whether registration emits an
	// email_verification token and email.
	SendVerificationOnRegister bool

	RateLimit RateLimitConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Mail      MailConfig
	Queue     QueueConfig
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// Load reads configuration values from the environment and returns a Config.
// A .env file is loaded first when present; real environment variables win.
// Missing required variables cause the program to exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}
	return Config{
		Env:                        must("APP_ENV"),
		Port:                       envStr("APP_PORT", "5005"),
		DBUser:                     must("DB_USER"),
		DBPass:                     envStr("DB_PASS", ""),
		DBHost:                     must("DB_HOST"),
		DBPort:                     envStr("DB_PORT", "3306"),
		DBName:                     must("DB_NAME"),
		JWTSecret:                  must("JWT_SECRET"),
		JWTTTL:                     envDur("JWT_TTL", 7*24*time.Hour),
		BcryptCost:                 envInt("BCRYPT_COST", 12),
		VerificationTTL:            envDur("VERIFICATION_TTL", 24*time.Hour),
		ResetTTL:                   envDur("PASSWORD_RESET_TTL", time.Hour),
		TokenGCInterval:            envDur("TOKEN_GC_INTERVAL", time.Hour),
		PublicBaseURL:              strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:5005"), "/"),
		AdminEmails:                envList("ADMIN_EMAILS"),
		CORSOrigins:                envList("CORS_ORIGINS"),
		ShutdownTimeout:            envDur("SHUTDOWN_TIMEOUT", 30*time.Second),
		SendVerificationOnRegister: envBool("SEND_VERIFICATION_ON_REGISTER", true),
		RateLimit:                  LoadRateLimitConfig(),
		Cache:                      LoadCacheConfig(),
		Redis:                      LoadRedisConfig(),
		Mail:                       LoadMailConfig(),
		Queue:                      LoadQueueConfig(),
	}
}
