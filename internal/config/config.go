package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Keys     KeysConfig
	Auth     AuthConfig
	Limiter  LimiterConfig
	Refunds  RefundsConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// KeysConfig holds the deployment secret the per-concert private keys are
// sealed with. Rotating it invalidates every stored key, so it is required
// and never defaulted.
type KeysConfig struct {
	Secret string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LimiterConfig describes the two login-failure windows.
type LimiterConfig struct {
	ShortWindow  time.Duration
	ShortMax     int
	ShortLockout time.Duration
	LongWindow   time.Duration
	LongMax      int
	LongLockout  time.Duration
}

type RefundsConfig struct {
	PendingTTL   time.Duration
	ProcessedTTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	keySecret := os.Getenv("KEY_SECRET")
	if keySecret == "" {
		return nil, fmt.Errorf("%s: missing KEY_SECRET", op)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	tokenTTL, err := durationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	limiterCfg, err := limiterFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pendingTTL, err := durationEnv("REFUND_PENDING_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	processedTTL, err := durationEnv("REFUND_PROCESSED_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Keys:     KeysConfig{Secret: keySecret},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			TokenTTL:  tokenTTL,
		},
		Limiter: limiterCfg,
		Refunds: RefundsConfig{
			PendingTTL:   pendingTTL,
			ProcessedTTL: processedTTL,
		},
	}, nil
}

func limiterFromEnv() (LimiterConfig, error) {
	shortWindow, err := durationEnv("LOGIN_SHORT_WINDOW", 10*time.Second)
	if err != nil {
		return LimiterConfig{}, err
	}
	shortMax, err := intEnv("LOGIN_SHORT_MAX", 5)
	if err != nil {
		return LimiterConfig{}, err
	}
	shortLockout, err := durationEnv("LOGIN_SHORT_LOCKOUT", 5*time.Minute)
	if err != nil {
		return LimiterConfig{}, err
	}
	longWindow, err := durationEnv("LOGIN_LONG_WINDOW", time.Hour)
	if err != nil {
		return LimiterConfig{}, err
	}
	longMax, err := intEnv("LOGIN_LONG_MAX", 15)
	if err != nil {
		return LimiterConfig{}, err
	}
	longLockout, err := durationEnv("LOGIN_LONG_LOCKOUT", 24*time.Hour)
	if err != nil {
		return LimiterConfig{}, err
	}

	return LimiterConfig{
		ShortWindow:  shortWindow,
		ShortMax:     shortMax,
		ShortLockout: shortLockout,
		LongWindow:   longWindow,
		LongMax:      longMax,
		LongLockout:  longLockout,
	}, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
