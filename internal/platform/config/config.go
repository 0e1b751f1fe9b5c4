package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Email     EmailConfig     `mapstructure:"email"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Workers   WorkersConfig   `mapstructure:"workers"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig is optional. An empty Addr keeps the link cache and the
// reconcile lock in process.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type RateLimitConfig struct {
	PaymentEmailPerMinute int `mapstructure:"payment_email_per_minute"`
	ConfirmPerMinute      int `mapstructure:"confirm_per_minute"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type EmailConfig struct {
	Provider string        `mapstructure:"provider"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
}

type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type PaymentConfig struct {
	// ConfirmURLTemplate must contain the {token} placeholder.
	ConfirmURLTemplate string        `mapstructure:"confirm_url_template"`
	Currency           string        `mapstructure:"currency"`
	PendingOrderTTL    time.Duration `mapstructure:"pending_order_ttl"`
	LinkCacheTTL       time.Duration `mapstructure:"link_cache_ttl"`
}

type WorkersConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ExpiryInterval    time.Duration `mapstructure:"expiry_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "file:./data/endurancy.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("redis.key_prefix", "endurancy:")
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("jwt.issuer", "endurancy")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)

	v.SetDefault("rate_limit.payment_email_per_minute", 10)
	v.SetDefault("rate_limit.confirm_per_minute", 30)
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.from_name", "Endurancy")
	v.SetDefault("email.breaker.failure_threshold", 5)
	v.SetDefault("email.breaker.open_timeout", 30*time.Second)

	v.SetDefault("payment.confirm_url_template", "http://localhost:3000/payment/confirm?token={token}")
	v.SetDefault("payment.currency", "BRL")
	v.SetDefault("payment.pending_order_ttl", 72*time.Hour)
	v.SetDefault("payment.link_cache_ttl", time.Hour)

	v.SetDefault("workers.reconcile_interval", time.Hour)
	v.SetDefault("workers.expiry_interval", 15*time.Minute)
}

// Load reads the YAML file at path, applying a .env file from the working
// directory first when one exists. Environment variables override file
// values, with dots replaced by underscores (PAYMENT_CURRENCY).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"jwt.secret",
		"redis.addr",
		"redis.password",
		"email.smtp.host",
		"email.smtp.username",
		"email.smtp.password",
		"email.smtp.from_address",
		"logging.file_path",
	} {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if !strings.Contains(config.Payment.ConfirmURLTemplate, "{token}") {
		return nil, errors.New("payment.confirm_url_template must contain {token}")
	}

	return &config, nil
}
