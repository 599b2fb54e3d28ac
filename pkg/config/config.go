package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App       AppConfig
	State     StateConfig
	DB        DBConfig
	Redis     RedisConfig
	Checkout  CheckoutConfig
	Sendgrid  SendgridConfig
	Breaker   BreakerConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.State.validate(); err != nil {
		return nil, err
	}
	if cfg.State.BackendName() == StateBackendSQL {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.State.BackendName() == StateBackendRedis && !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("%s=redis requires %s or BUILDMART_REDIS_ADDR", EnvStateBackend, EnvRedisURL)
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if cfg.Checkout.Transport() == MailTransportSendgrid && strings.TrimSpace(cfg.Sendgrid.APIKey) == "" {
		return nil, fmt.Errorf("%s is required for the sendgrid mail transport", EnvSendgridAPIKey)
	}
	if cfg.Checkout.PublishOrderEvt && strings.TrimSpace(cfg.GCP.ProjectID) == "" {
		return nil, fmt.Errorf("%s is required to publish order events", EnvGCPProjectID)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BUILDMART_APP_ENV" required:"true"`
	Port         string `envconfig:"BUILDMART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BUILDMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BUILDMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StateConfig selects where session cart/favorites are mirrored.
type StateConfig struct {
	Backend       string        `envconfig:"BUILDMART_STATE_BACKEND" default:"memory"`
	TTL           time.Duration `envconfig:"BUILDMART_STATE_TTL" default:"720h"`
	IdleTTL       time.Duration `envconfig:"BUILDMART_STATE_IDLE_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"BUILDMART_STATE_SWEEP_INTERVAL" default:"5m"`
}

func (s StateConfig) validate() error {
	if s.SweepInterval <= 0 {
		return fmt.Errorf("BUILDMART_STATE_SWEEP_INTERVAL must be positive (got %s)", s.SweepInterval)
	}
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case StateBackendMemory, StateBackendRedis, StateBackendSQL:
		return nil
	}
	return fmt.Errorf("%s must be one of memory, redis, sql (got %q)", EnvStateBackend, s.Backend)
}

// BackendName returns the normalized backend identifier.
func (s StateConfig) BackendName() string {
	return strings.ToLower(strings.TrimSpace(s.Backend))
}

type DBConfig struct {
	DSN    string `envconfig:"BUILDMART_DB_DSN"`
	Driver string `envconfig:"BUILDMART_DB_DRIVER" default:"sqlite"`

	Host     string `envconfig:"BUILDMART_DB_HOST"`
	Port     int    `envconfig:"BUILDMART_DB_PORT" default:"5432"`
	User     string `envconfig:"BUILDMART_DB_USER"`
	Password string `envconfig:"BUILDMART_DB_PASSWORD"`
	Name     string `envconfig:"BUILDMART_DB_NAME"`
	SSLMode  string `envconfig:"BUILDMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BUILDMART_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"BUILDMART_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"BUILDMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BUILDMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"BUILDMART_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the configured driver is sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BUILDMART_REDIS_URL"`
	Address      string        `envconfig:"BUILDMART_REDIS_ADDR"`
	Password     string        `envconfig:"BUILDMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"BUILDMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BUILDMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BUILDMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BUILDMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BUILDMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BUILDMART_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"BUILDMART_REDIS_KEY_PREFIX" default:"bm"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// CheckoutConfig holds the order pipeline constants.
type CheckoutConfig struct {
	ShippingFee     string        `envconfig:"BUILDMART_CHECKOUT_SHIPPING_FEE" default:"500"`
	TaxRate         string        `envconfig:"BUILDMART_CHECKOUT_TAX_RATE" default:"0.20"`
	OperatorEmail   string        `envconfig:"BUILDMART_CHECKOUT_OPERATOR_EMAIL" required:"true"`
	CurrencyLabel   string        `envconfig:"BUILDMART_CHECKOUT_CURRENCY" default:"RUB"`
	AttachmentName  string        `envconfig:"BUILDMART_CHECKOUT_ATTACHMENT_NAME" default:"order.pdf"`
	SubmitTimeout   time.Duration `envconfig:"BUILDMART_CHECKOUT_SUBMIT_TIMEOUT" default:"30s"`
	MailTransport   string        `envconfig:"BUILDMART_CHECKOUT_MAIL_TRANSPORT" default:"log"`
	PublishOrderEvt bool          `envconfig:"BUILDMART_CHECKOUT_PUBLISH_EVENTS" default:"false"`
}

// Transport returns the normalized mail transport name.
func (c CheckoutConfig) Transport() string {
	return strings.ToLower(strings.TrimSpace(c.MailTransport))
}

// ShippingFeeAmount parses the configured flat shipping fee.
func (c CheckoutConfig) ShippingFeeAmount() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(c.ShippingFee))
	if err != nil {
		return decimal.NewFromInt(DefaultShippingFee)
	}
	return v
}

// TaxRateAmount parses the configured tax rate.
func (c CheckoutConfig) TaxRateAmount() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.RequireFromString(DefaultTaxRate)
	}
	return v
}

func (c CheckoutConfig) validate() error {
	if _, err := mail.ParseAddress(c.OperatorEmail); err != nil {
		return fmt.Errorf("%s is not a valid address: %w", EnvCheckoutOperatorEmail, err)
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(c.ShippingFee))
	if err != nil || fee.IsNegative() {
		return fmt.Errorf("%s must be a non-negative amount", EnvCheckoutShippingFee)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil || rate.IsNegative() {
		return fmt.Errorf("%s must be a non-negative rate", EnvCheckoutTaxRate)
	}
	switch strings.ToLower(strings.TrimSpace(c.MailTransport)) {
	case MailTransportLog, MailTransportSendgrid:
	default:
		return fmt.Errorf("%s must be log or sendgrid (got %q)", EnvCheckoutMailTransport, c.MailTransport)
	}
	return nil
}

type SendgridConfig struct {
	APIKey      string `envconfig:"BUILDMART_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"BUILDMART_SENDGRID_FROM_EMAIL" default:"orders@buildmart.local"`
	FromName    string `envconfig:"BUILDMART_SENDGRID_FROM_NAME" default:"BuildMart"`
}

// BreakerConfig tunes the circuit breaker guarding outbound mail.
type BreakerConfig struct {
	MaxRequests         uint32        `envconfig:"BUILDMART_BREAKER_MAX_REQUESTS" default:"1"`
	Interval            time.Duration `envconfig:"BUILDMART_BREAKER_INTERVAL" default:"60s"`
	Timeout             time.Duration `envconfig:"BUILDMART_BREAKER_TIMEOUT" default:"30s"`
	ConsecutiveFailures uint32        `envconfig:"BUILDMART_BREAKER_CONSECUTIVE_FAILURES" default:"5"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BUILDMART_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"BUILDMART_PUBSUB_ORDERS_TOPIC" default:"bm-order-events"`
	CartTopic   string `envconfig:"BUILDMART_PUBSUB_CART_TOPIC"`
	// OrderBySession publishes with the session id as ordering key.
	OrderBySession bool `envconfig:"BUILDMART_PUBSUB_ORDER_BY_SESSION" default:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BUILDMART_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"BUILDMART_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"BUILDMART_RATE_LIMIT_CHECKOUT_LIMIT" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range postgresDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
