// Package config loads BAZAAR_* environment variables into typed settings and
// rejects combinations the services cannot run with.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	HTTP           HTTPConfig
	FeatureFlags   FeatureFlagsConfig
	Gateway        GatewayConfig
	Kafka          KafkaConfig
	Checkout       CheckoutConfig
	Reconciliation ReconciliationConfig
	Webhooks       WebhooksConfig
}

// Load reads the environment and validates the result. Every validation
// failure is reported, not just the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills derived values (the DB DSN) and checks cross-field rules.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.DB.ensureDSN(),
		c.Redis.validate(),
		c.Gateway.validate(),
		c.HTTP.validate(),
		c.Checkout.validate(),
		c.Reconciliation.validate(),
	)
}

type AppConfig struct {
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return envIs(a.Env, AppEnvDev, "development", "local")
}

func (a AppConfig) IsProd() bool {
	return envIs(a.Env, AppEnvProd, "production")
}

func envIs(env string, names ...string) bool {
	env = strings.TrimSpace(env)
	for _, name := range names {
		if strings.EqualFold(env, name) {
			return true
		}
	}
	return false
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	// Host and friends build a postgres DSN when DSN is unset.
	Host     string `envconfig:"BAZAAR_DB_HOST"`
	Port     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZAAR_DB_USER"`
	Password string `envconfig:"BAZAAR_DB_PASSWORD"`
	Name     string `envconfig:"BAZAAR_DB_NAME"`
	SSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"BAZAAR_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" required:"true"`
}

// HTTPConfig holds edge policy for the public API.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"BAZAAR_CORS_ALLOWED_ORIGINS"`
	RateLimitWindow    time.Duration `envconfig:"BAZAAR_RATE_LIMIT_WINDOW" default:"1m"`
	OrderIPLimit       int           `envconfig:"BAZAAR_RATE_LIMIT_ORDER_IP" default:"60"`
	OrderUserLimit     int           `envconfig:"BAZAAR_RATE_LIMIT_ORDER_USER" default:"20"`
	WebhookIPLimit     int           `envconfig:"BAZAAR_RATE_LIMIT_WEBHOOK_IP" default:"600"`
}

func (h HTTPConfig) validate() error {
	var err error
	if h.RateLimitWindow <= 0 {
		err = multierr.Append(err, fmt.Errorf("rate limit window must be positive"))
	}
	if h.OrderIPLimit < 0 || h.OrderUserLimit < 0 || h.WebhookIPLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("rate limits must not be negative"))
	}
	return err
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig points at the hosted payment provider.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"BAZAAR_GATEWAY_BASE_URL" default:"https://api.paystack.co"`
	SecretKey     string        `envconfig:"BAZAAR_GATEWAY_SECRET_KEY" required:"true"`
	WebhookSecret string        `envconfig:"BAZAAR_GATEWAY_WEBHOOK_SECRET"`
	CallbackURL   string        `envconfig:"BAZAAR_GATEWAY_CALLBACK_URL" required:"true"`
	Timeout       time.Duration `envconfig:"BAZAAR_GATEWAY_TIMEOUT" default:"10s"`
}

// SigningSecret returns the webhook HMAC secret. Providers that sign with the
// API secret leave WebhookSecret empty.
func (g GatewayConfig) SigningSecret() string {
	if secret := strings.TrimSpace(g.WebhookSecret); secret != "" {
		return secret
	}
	return strings.TrimSpace(g.SecretKey)
}

func (g GatewayConfig) validate() error {
	if _, err := url.ParseRequestURI(g.CallbackURL); err != nil {
		return fmt.Errorf("%s must be an absolute url: %w", EnvGatewayCallbackURL, err)
	}
	return nil
}

type KafkaConfig struct {
	Brokers           []string `envconfig:"BAZAAR_KAFKA_BROKERS"`
	NotificationTopic string   `envconfig:"BAZAAR_KAFKA_NOTIFICATION_TOPIC" default:"bazaar-notifications"`
	BufferSize        int      `envconfig:"BAZAAR_KAFKA_BUFFER_SIZE" default:"256"`
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool {
	for _, broker := range k.Brokers {
		if strings.TrimSpace(broker) != "" {
			return true
		}
	}
	return false
}

type CheckoutConfig struct {
	Currency          string        `envconfig:"BAZAAR_CHECKOUT_CURRENCY" default:"NGN"`
	FlatShippingMinor int64         `envconfig:"BAZAAR_CHECKOUT_FLAT_SHIPPING_MINOR" default:"0"`
	TaxRateBps        int64         `envconfig:"BAZAAR_CHECKOUT_TAX_RATE_BPS" default:"0"`
	ReserveMaxRetries uint64        `envconfig:"BAZAAR_CHECKOUT_RESERVE_MAX_RETRIES" default:"3"`
	ReserveBackoff    time.Duration `envconfig:"BAZAAR_CHECKOUT_RESERVE_BACKOFF" default:"50ms"`
	LockTimeout       time.Duration `envconfig:"BAZAAR_CHECKOUT_LOCK_TIMEOUT" default:"2s"`
}

func (c CheckoutConfig) validate() error {
	var err error
	if len(c.Currency) != 3 || strings.ToUpper(c.Currency) != c.Currency {
		err = multierr.Append(err, fmt.Errorf("checkout currency %q must be an ISO 4217 code", c.Currency))
	}
	if c.FlatShippingMinor < 0 || c.TaxRateBps < 0 || c.TaxRateBps > 10_000 {
		err = multierr.Append(err, fmt.Errorf("shipping must be >= 0 and tax rate within 0..10000 bps"))
	}
	return err
}

type ReconciliationConfig struct {
	SweepInterval      time.Duration `envconfig:"BAZAAR_RECONCILE_SWEEP_INTERVAL" default:"5m"`
	InitGracePeriod    time.Duration `envconfig:"BAZAAR_RECONCILE_INIT_GRACE_PERIOD" default:"10m"`
	MaxGatewayAttempts int           `envconfig:"BAZAAR_RECONCILE_MAX_GATEWAY_ATTEMPTS" default:"5"`
	PendingOrderTTL    time.Duration `envconfig:"BAZAAR_RECONCILE_PENDING_ORDER_TTL" default:"72h"`
}

func (r ReconciliationConfig) validate() error {
	var err error
	for name, d := range map[string]time.Duration{
		"sweep interval":    r.SweepInterval,
		"init grace period": r.InitGracePeriod,
		"pending order ttl": r.PendingOrderTTL,
	} {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("reconcile %s must be positive", name))
		}
	}
	if r.MaxGatewayAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("max gateway attempts must be at least 1"))
	}
	return err
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BAZAAR_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
