package config

const (
	EnvPrefix = "FARMACHELO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "FARMACHELO_APP_ENV"
	EnvPort      = "FARMACHELO_APP_PORT"
	EnvDBDSN     = "FARMACHELO_DB_DSN"
	EnvDBDriver  = "FARMACHELO_DB_DRIVER"
	EnvDBHost    = "FARMACHELO_DB_HOST"
	EnvDBUser    = "FARMACHELO_DB_USER"
	EnvDBName    = "FARMACHELO_DB_NAME"
	EnvRedisURL  = "FARMACHELO_REDIS_URL"
	EnvJWTSecret = "FARMACHELO_JWT_SECRET"
	EnvJWTIssuer = "FARMACHELO_JWT_ISSUER"
	EnvJWTExpMin = "FARMACHELO_JWT_EXPIRATION_MINUTES"

	EnvEnforceCardValidation = "FARMACHELO_PAYMENTS_ENFORCE_CARD_VALIDATION"
	EnvInvoiceTaxRate        = "FARMACHELO_INVOICE_TAX_RATE"
	EnvInvoiceSequence       = "FARMACHELO_INVOICE_SEQUENCE_BACKEND"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SequenceBackendDB    = "db"
	SequenceBackendRedis = "redis"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
