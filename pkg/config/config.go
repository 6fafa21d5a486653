package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Payments      PaymentsConfig
	Invoices      InvoiceConfig
	Locks         LockConfig
	Seed          SeedConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Repair        RepairConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Invoices.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FARMACHELO_APP_ENV" required:"true"`
	Port         string   `envconfig:"FARMACHELO_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FARMACHELO_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FARMACHELO_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FARMACHELO_CORS_ORIGINS" default:"*"`

	IdempotencyTTL time.Duration `envconfig:"FARMACHELO_IDEMPOTENCY_TTL" default:"24h"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMACHELO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMACHELO_DB_DSN"`
	Driver string `envconfig:"FARMACHELO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMACHELO_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMACHELO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMACHELO_DB_USER"`
	LegacyPassword string `envconfig:"FARMACHELO_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMACHELO_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMACHELO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMACHELO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMACHELO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMACHELO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMACHELO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	QueryTimeout    time.Duration `envconfig:"FARMACHELO_DB_QUERY_TIMEOUT" default:"5s"`
	SlowQuery       time.Duration `envconfig:"FARMACHELO_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMACHELO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMACHELO_REDIS_ADDR"`
	Password     string        `envconfig:"FARMACHELO_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMACHELO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMACHELO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMACHELO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMACHELO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMACHELO_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"FARMACHELO_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMACHELO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMACHELO_JWT_ISSUER" default:"farmachelo"`
	ExpirationMinutes int    `envconfig:"FARMACHELO_JWT_EXPIRATION_MINUTES" default:"30"`
}

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FARMACHELO_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FARMACHELO_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FARMACHELO_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FARMACHELO_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FARMACHELO_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"FARMACHELO_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARMACHELO_AUTO_MIGRATE" default:"false"`
	SeedCatalog bool `envconfig:"FARMACHELO_SEED_CATALOG" default:"true"`
}

type PaymentsConfig struct {
	EnforceCardValidation bool   `envconfig:"FARMACHELO_PAYMENTS_ENFORCE_CARD_VALIDATION" default:"true"`
	AmountTolerance       string `envconfig:"FARMACHELO_PAYMENTS_AMOUNT_TOLERANCE" default:"0.01"`
	Currency              string `envconfig:"FARMACHELO_PAYMENTS_CURRENCY" default:"COP"`
}

// Tolerance returns the absolute amount tolerance used by the settlement amount check.
func (p PaymentsConfig) Tolerance() decimal.Decimal {
	value, err := decimal.NewFromString(p.AmountTolerance)
	if err != nil {
		return decimal.NewFromFloat(0.01)
	}
	return value
}

func (p PaymentsConfig) validate() error {
	value, err := decimal.NewFromString(p.AmountTolerance)
	if err != nil {
		return fmt.Errorf("invalid amount tolerance %q: %w", p.AmountTolerance, err)
	}
	if value.IsNegative() {
		return fmt.Errorf("amount tolerance must not be negative")
	}
	return nil
}

type InvoiceConfig struct {
	TaxRate         string `envconfig:"FARMACHELO_INVOICE_TAX_RATE" default:"0.19"`
	DueDays         int    `envconfig:"FARMACHELO_INVOICE_DUE_DAYS" default:"30"`
	NumberWidth     int    `envconfig:"FARMACHELO_INVOICE_NUMBER_WIDTH" default:"5"`
	SequenceBackend string `envconfig:"FARMACHELO_INVOICE_SEQUENCE_BACKEND" default:"db"`
	Notes           string `envconfig:"FARMACHELO_INVOICE_NOTES" default:"Gracias por su compra en Farmachelo"`
}

// Rate returns the configured tax rate as a decimal.
func (i InvoiceConfig) Rate() decimal.Decimal {
	value, err := decimal.NewFromString(i.TaxRate)
	if err != nil {
		return decimal.RequireFromString("0.19")
	}
	return value
}

func (i InvoiceConfig) validate() error {
	rate, err := decimal.NewFromString(i.TaxRate)
	if err != nil {
		return fmt.Errorf("invalid invoice tax rate %q: %w", i.TaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("invoice tax rate must be in [0,1), got %s", i.TaxRate)
	}
	switch strings.ToLower(i.SequenceBackend) {
	case SequenceBackendDB, SequenceBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvInvoiceSequence, SequenceBackendDB, SequenceBackendRedis)
	}
	return nil
}

type LockConfig struct {
	TTL          time.Duration `envconfig:"FARMACHELO_LOCK_TTL" default:"15s"`
	WaitTimeout  time.Duration `envconfig:"FARMACHELO_LOCK_WAIT_TIMEOUT" default:"5s"`
	PollInterval time.Duration `envconfig:"FARMACHELO_LOCK_POLL_INTERVAL" default:"25ms"`
}

type SeedConfig struct {
	AdminEmail    string `envconfig:"FARMACHELO_SEED_ADMIN_EMAIL" default:"admin@farmachelo.com"`
	AdminPassword string `envconfig:"FARMACHELO_SEED_ADMIN_PASSWORD" default:"admin123"`
	AdminName     string `envconfig:"FARMACHELO_SEED_ADMIN_NAME" default:"Administrador Farmachelo"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FARMACHELO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMACHELO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMACHELO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMACHELO_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions picks inline JSON credentials over a credentials file; with
// neither set the SDKs fall back to application default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	}
	return nil
}

type PubSubConfig struct {
	SettlementTopic           string `envconfig:"FARMACHELO_PUBSUB_SETTLEMENT_TOPIC" default:"farmachelo-settlement-events"`
	InvoiceRepairSubscription string `envconfig:"FARMACHELO_PUBSUB_INVOICE_REPAIR_SUBSCRIPTION" default:"farmachelo-invoice-repair"`
	AnalyticsSubscription     string `envconfig:"FARMACHELO_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"farmachelo-settlement-analytics"`
	DeadLetterTopic           string `envconfig:"FARMACHELO_PUBSUB_DEAD_LETTER_TOPIC"`
	MaxOutstandingMessages    int    `envconfig:"FARMACHELO_PUBSUB_MAX_OUTSTANDING" default:"10"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"FARMACHELO_BIGQUERY_DATASET" default:"farmachelo"`
	SettlementsTable string `envconfig:"FARMACHELO_BIGQUERY_SETTLEMENTS_TABLE" default:"settlement_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMACHELO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMACHELO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMACHELO_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FARMACHELO_OUTBOX_RETENTION_DAYS" default:"30"`
}

type RepairConfig struct {
	Interval  time.Duration `envconfig:"FARMACHELO_REPAIR_INTERVAL" default:"5m"`
	BatchSize int           `envconfig:"FARMACHELO_REPAIR_BATCH_SIZE" default:"25"`
	MinAge    time.Duration `envconfig:"FARMACHELO_REPAIR_MIN_AGE" default:"1m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:farmachelo.db?cache=shared&_foreign_keys=on"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
