package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName       = "PassWallet"
	defaultAppEnv        = "development"
	defaultPort          = "3000"
	defaultLogLevel      = "info"
	defaultRPID          = "localhost"
	defaultRPName        = "PassWallet Demo"
	defaultRPOrigin      = "http://localhost:3000"
	defaultMessagingEnv  = "dev"
	defaultStaticDir     = "./public"
	defaultShutdownDelay = 10 * time.Second
	defaultChallengeTTL  = 5 * time.Minute
	defaultIdemTTL       = 24 * time.Hour

	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	challengeTTLEnvVar     = "CHALLENGE_TTL"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	// Relying party identity the passkeys are bound to.
	RPID     string
	RPName   string
	RPOrigin string

	// Ethereum deployment. When EthereumRPCURL is empty the chain simulator
	// is selected at startup instead of the RPC connectors.
	EthereumRPCURL        string
	ChainPrivateKey       string
	AccountFactoryAddress string

	MessagingEnv string

	// Optional backing stores. Empty values select the in-memory backends.
	DatabaseURL string
	RedisURL    string

	StaticDir      string
	ShutdownPeriod time.Duration
	ChallengeTTL   time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		RPID:                  getEnv("RP_ID", defaultRPID),
		RPName:                getEnv("RP_NAME", defaultRPName),
		RPOrigin:              getEnv("RP_ORIGIN", defaultRPOrigin),
		EthereumRPCURL:        os.Getenv("ETHEREUM_RPC_URL"),
		ChainPrivateKey:       os.Getenv("CHAIN_PRIVATE_KEY"),
		AccountFactoryAddress: os.Getenv("ACCOUNT_FACTORY_ADDRESS"),
		MessagingEnv:          getEnv("MESSAGING_ENV", defaultMessagingEnv),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		StaticDir:             getEnv("STATIC_DIR", defaultStaticDir),
		ShutdownPeriod:        defaultShutdownDelay,
		ChallengeTTL:          defaultChallengeTTL,
		IdempotencyTTL:        defaultIdemTTL,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(challengeTTLEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", challengeTTLEnvVar, err)
		}
		cfg.ChallengeTTL = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if cfg.RPID == "" || cfg.RPOrigin == "" {
		return Config{}, fmt.Errorf("RP_ID and RP_ORIGIN must be set")
	}

	return cfg, nil
}

// ChainConfigured reports whether an Ethereum RPC endpoint was provided. When
// it returns false the deterministic chain simulator is selected instead.
func (c Config) ChainConfigured() bool {
	return c.EthereumRPCURL != ""
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
