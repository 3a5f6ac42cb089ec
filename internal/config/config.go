package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AllowedOrigins is the CORS allow list; empty allows any origin without
	// credentials.
	AllowedOrigins   []string
	AllowCredentials bool
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey string
	Issuer    string
}

type LedgerConfig struct {
	OpTimeout  time.Duration
	HistoryMax int
}

type BetaConfig struct {
	MaxFreeUsers   int
	InitialCredits int64
}

type PricingConfig struct {
	LocalCurrency string
}

type CardGatewayConfig struct {
	BaseURL   string
	SecretKey string
}

type CryptoGatewayConfig struct {
	BaseURL     string
	APIKey      string
	IPNSecret   string
	PayCurrency string
}

type GatewayConfig struct {
	Card    CardGatewayConfig
	Crypto  CryptoGatewayConfig
	Timeout time.Duration
}

type GenerationConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RateLimit  int
	RateWindow time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Config is built once in main and handed to every component that needs it.
type Config struct {
	Server          ServerConfig
	Database        DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Ledger          LedgerConfig
	Beta            BetaConfig
	Pricing         PricingConfig
	Gateway         GatewayConfig
	Generation      GenerationConfig
	AdminAccountIDs []string
	Log             LogConfig
}

var envBindings = map[string]string{
	"server.port":       "PORT",
	"server.public_url": "PUBLIC_URL",

	"server.allowed_origins":   "CORS_ALLOWED_ORIGINS",
	"server.allow_credentials": "CORS_ALLOW_CREDENTIALS",

	"database.host":         "DATABASE_HOST",
	"database.port":         "DATABASE_PORT",
	"database.user":         "DATABASE_USER",
	"database.password":     "DATABASE_PASSWORD",
	"database.name":         "DATABASE_NAME",
	"database.ssl_mode":     "DATABASE_SSL_MODE",
	"database.auto_migrate": "DATABASE_AUTO_MIGRATE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",
	"jwt.issuer":     "JWT_ISSUER",

	"ledger.op_timeout":    "LEDGER_OP_TIMEOUT",
	"beta.max_free_users":  "BETA_MAX_FREE_USERS",
	"beta.initial_credits": "BETA_INITIAL_CREDITS",

	"pricing.local_currency": "PRICING_LOCAL_CURRENCY",

	"gateway.card.base_url":       "CARD_GATEWAY_BASE_URL",
	"gateway.card.secret_key":     "CARD_GATEWAY_SECRET_KEY",
	"gateway.crypto.base_url":     "CRYPTO_GATEWAY_BASE_URL",
	"gateway.crypto.api_key":      "CRYPTO_GATEWAY_API_KEY",
	"gateway.crypto.ipn_secret":   "CRYPTO_GATEWAY_IPN_SECRET",
	"gateway.crypto.pay_currency": "CRYPTO_GATEWAY_PAY_CURRENCY",

	"generation.base_url":    "GENERATION_BASE_URL",
	"generation.api_key":     "GENERATION_API_KEY",
	"generation.model":       "GENERATION_MODEL",
	"generation.timeout":     "GENERATION_TIMEOUT",
	"generation.rate_limit":  "GENERATION_RATE_LIMIT",
	"generation.rate_window": "GENERATION_RATE_WINDOW",

	"admin.account_ids": "ADMIN_ACCOUNT_IDS",

	"log.level":  "LOG_LEVEL",
	"log.pretty": "LOG_PRETTY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.allow_credentials", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "sitecraft")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "")

	v.SetDefault("ledger.op_timeout", 5*time.Second)
	v.SetDefault("ledger.history_max", 100)

	v.SetDefault("beta.max_free_users", 100)
	v.SetDefault("beta.initial_credits", 3)

	v.SetDefault("pricing.local_currency", "NGN")

	v.SetDefault("gateway.card.base_url", "https://api.paystack.co")
	v.SetDefault("gateway.crypto.base_url", "https://api.nowpayments.io")
	v.SetDefault("gateway.crypto.pay_currency", "usdttrc20")
	v.SetDefault("gateway.timeout", 15*time.Second)

	v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.rate_limit", 10)
	v.SetDefault("generation.rate_window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads .env (when present) and environment overrides. A missing .env is not
// an error; defaults cover everything except secrets.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
		// .env keys arrive flat (DATABASE_HOST -> database_host); lift them onto
		// the dotted keys below the environment in precedence.
		for key, env := range envBindings {
			if flat := strings.ToLower(env); v.InConfig(flat) {
				v.SetDefault(key, v.Get(flat))
			}
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			PublicURL:       strings.TrimRight(v.GetString("server.public_url"), "/"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),

			AllowedOrigins:   splitList(v.GetString("server.allowed_origins")),
			AllowCredentials: v.GetBool("server.allow_credentials"),
		},
		Database: DBConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
			Issuer:    v.GetString("jwt.issuer"),
		},
		Ledger: LedgerConfig{
			OpTimeout:  v.GetDuration("ledger.op_timeout"),
			HistoryMax: v.GetInt("ledger.history_max"),
		},
		Beta: BetaConfig{
			MaxFreeUsers:   v.GetInt("beta.max_free_users"),
			InitialCredits: v.GetInt64("beta.initial_credits"),
		},
		Pricing: PricingConfig{
			LocalCurrency: strings.ToUpper(v.GetString("pricing.local_currency")),
		},
		Gateway: GatewayConfig{
			Card: CardGatewayConfig{
				BaseURL:   v.GetString("gateway.card.base_url"),
				SecretKey: v.GetString("gateway.card.secret_key"),
			},
			Crypto: CryptoGatewayConfig{
				BaseURL:     v.GetString("gateway.crypto.base_url"),
				APIKey:      v.GetString("gateway.crypto.api_key"),
				IPNSecret:   v.GetString("gateway.crypto.ipn_secret"),
				PayCurrency: v.GetString("gateway.crypto.pay_currency"),
			},
			Timeout: v.GetDuration("gateway.timeout"),
		},
		Generation: GenerationConfig{
			BaseURL:    v.GetString("generation.base_url"),
			APIKey:     v.GetString("generation.api_key"),
			Model:      v.GetString("generation.model"),
			Timeout:    v.GetDuration("generation.timeout"),
			RateLimit:  v.GetInt("generation.rate_limit"),
			RateWindow: v.GetDuration("generation.rate_window"),
		},
		AdminAccountIDs: splitList(v.GetString("admin.account_ids")),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
