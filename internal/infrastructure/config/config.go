package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Store backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	// Server
	ServerPort  int
	Environment string
	LogLevel    string
	UpstreamURL string

	// Redis
	RedisHost          string
	RedisPort          int
	RedisPassword      string
	RedisDB            int
	RedisRetryAttempts int
	RedisRetryInterval time.Duration

	// Rate limiting
	StoreBackend     string
	StoreTimeout     time.Duration
	RateLimitEnabled bool

	// Policies por nome (api_global, auth_login, ...)
	Policies map[string]entity.Policy
}

// RateLimitDisabled is true only under the test environment or when explicitly switched off
func (c *Config) RateLimitDisabled() bool {
	return c.Environment == EnvTest || !c.RateLimitEnabled
}

// IsDevelopment reports whether human-readable logs should be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// RedisAddr returns host:port
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Policy returns the policy registered under name
func (c *Config) Policy(name string) (entity.Policy, bool) {
	p, ok := c.Policies[name]
	return p, ok
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("ENVIRONMENT", EnvDevelopment)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_RETRY_ATTEMPTS", 5)
	viper.SetDefault("REDIS_RETRY_INTERVAL", "200ms")
	viper.SetDefault("STORE_BACKEND", BackendRedis)
	viper.SetDefault("STORE_TIMEOUT", "250ms")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
}

func Load() (*Config, error) {
	// Limpa configurações anteriores do viper
	viper.Reset()

	// Configura viper
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	setDefaults()

	// Tenta ler .env (ignora erro se não existir, usa env vars)
	_ = viper.ReadInConfig()

	// Carrega configurações básicas
	cfg := &Config{
		ServerPort:         viper.GetInt("SERVER_PORT"),
		Environment:        strings.ToLower(viper.GetString("ENVIRONMENT")),
		LogLevel:           viper.GetString("LOG_LEVEL"),
		UpstreamURL:        viper.GetString("UPSTREAM_URL"),
		RedisHost:          viper.GetString("REDIS_HOST"),
		RedisPort:          viper.GetInt("REDIS_PORT"),
		RedisPassword:      viper.GetString("REDIS_PASSWORD"),
		RedisDB:            viper.GetInt("REDIS_DB"),
		RedisRetryAttempts: viper.GetInt("REDIS_RETRY_ATTEMPTS"),
		RedisRetryInterval: viper.GetDuration("REDIS_RETRY_INTERVAL"),
		StoreBackend:       strings.ToLower(viper.GetString("STORE_BACKEND")),
		StoreTimeout:       viper.GetDuration("STORE_TIMEOUT"),
		RateLimitEnabled:   viper.GetBool("RATE_LIMIT_ENABLED"),
	}

	// Valida campos obrigatórios
	if cfg.ServerPort <= 0 {
		return nil, fmt.Errorf("SERVER_PORT is required and must be positive")
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return nil, fmt.Errorf("ENVIRONMENT must be one of %s, %s, %s, got %q", EnvDevelopment, EnvProduction, EnvTest, cfg.Environment)
	}
	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.RedisHost == "" {
			return nil, fmt.Errorf("REDIS_HOST is required")
		}
		if cfg.RedisRetryAttempts <= 0 {
			return nil, fmt.Errorf("REDIS_RETRY_ATTEMPTS must be positive")
		}
		if cfg.RedisRetryInterval <= 0 {
			return nil, fmt.Errorf("REDIS_RETRY_INTERVAL must be positive")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %s or %s, got %q", BackendRedis, BackendMemory, cfg.StoreBackend)
	}
	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("STORE_TIMEOUT must be positive")
	}

	policies, err := loadPolicies()
	if err != nil {
		return nil, err
	}
	cfg.Policies = policies

	return cfg, nil
}

// loadPolicies aplica overrides sobre os defaults
// Formato: RATE_LIMIT_{NOME}_CAPACITY, RATE_LIMIT_{NOME}_REFILL_RATE, RATE_LIMIT_FAIL_CLOSED=nome1,nome2
func loadPolicies() (map[string]entity.Policy, error) {
	policies := make(map[string]entity.Policy)

	for _, p := range DefaultPolicies() {
		prefix := "RATE_LIMIT_" + strings.ToUpper(p.Name)

		if viper.IsSet(prefix + "_CAPACITY") {
			p.Capacity = viper.GetInt(prefix + "_CAPACITY")
		}
		if viper.IsSet(prefix + "_REFILL_RATE") {
			p.RefillRate = viper.GetFloat64(prefix + "_REFILL_RATE")
		}

		policies[p.Name] = p
	}

	for _, name := range splitList(viper.GetString("RATE_LIMIT_FAIL_CLOSED")) {
		p, ok := policies[name]
		if !ok {
			return nil, fmt.Errorf("RATE_LIMIT_FAIL_CLOSED: unknown policy %q", name)
		}
		p.FailClosed = true
		policies[name] = p
	}

	// Bucket mal configurado é fatal na inicialização
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return policies, nil
}

// splitList separa uma lista por vírgulas ignorando vazios
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
