package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost string
	HTTPPort string
	MySQLDSN string

	JWTAlgorithm      string
	JWTAccessSecret   string
	JWTRefreshSecret  string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	MaxActiveSessions int

	VerificationTokenSecret string
	PasswordResetTTL        time.Duration
	EmailVerificationTTL    time.Duration

	Argon2      Argon2Config
	SMTP        SMTPConfig
	FrontendURL string

	LogLevel  string
	LogFormat string
}

type Argon2Config struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	Workers     int
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	accessSecret := os.Getenv("JWT_ACCESS_SECRET_KEY")
	if accessSecret == "" {
		return nil, errors.New("JWT_ACCESS_SECRET_KEY environment variable is required")
	}

	refreshSecret := os.Getenv("JWT_REFRESH_SECRET_KEY")
	if refreshSecret == "" {
		return nil, errors.New("JWT_REFRESH_SECRET_KEY environment variable is required")
	}

	verificationSecret := os.Getenv("VERIFICATION_TOKEN_SECRET")
	if verificationSecret == "" {
		return nil, errors.New("VERIFICATION_TOKEN_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		HTTPHost: getEnv("HTTP_HOST", ""),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		MySQLDSN: mysqlDSN,

		JWTAlgorithm:      getEnv("JWT_ALGORITHM", "HS256"),
		JWTAccessSecret:   accessSecret,
		JWTRefreshSecret:  refreshSecret,
		AccessTokenTTL:    getMinutesEnv("JWT_ACCESS_EXPIRE_MINUTES", 15*time.Minute),
		RefreshTokenTTL:   getMinutesEnv("JWT_REFRESH_EXPIRE_MINUTES", 7*24*time.Hour),
		MaxActiveSessions: getIntEnv("MAX_ACTIVE_SESSIONS", 5),

		VerificationTokenSecret: verificationSecret,
		PasswordResetTTL:        getMinutesEnv("PASSWORD_RESET_EXPIRE_MINUTES", 15*time.Minute),
		EmailVerificationTTL:    getMinutesEnv("EMAIL_VERIFICATION_EXPIRE_MINUTES", 24*time.Hour),

		Argon2:      loadArgon2(),
		SMTP:        loadSMTP(),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadArgon2() Argon2Config {
	parallelism := getIntEnv("ARGON2_PARALLELISM", 2)
	if parallelism < 1 || parallelism > 255 {
		parallelism = 2
	}

	workers := getIntEnv("ARGON2_WORKERS", runtime.GOMAXPROCS(0))
	if workers < 1 {
		workers = 1
	}

	return Argon2Config{
		Time:        uint32(getIntEnv("ARGON2_TIME", 3)),
		MemoryKiB:   uint32(getIntEnv("ARGON2_MEMORY_KIB", 64*1024)),
		Parallelism: uint8(parallelism),
		SaltLength:  16,
		KeyLength:   32,
		Workers:     workers,
	}
}

func loadSMTP() SMTPConfig {
	return SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     getEnv("SMTP_PORT", "587"),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "no-reply@localhost"),
	}
}
