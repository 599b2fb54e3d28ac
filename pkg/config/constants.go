package config

const (
	EnvPrefix = "BUILDMART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
	StateBackendSQL    = "sql"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
	DefaultSQLiteDSN = "file:buildmart.db?_busy_timeout=5000&_journal_mode=WAL"

	MailTransportLog      = "log"
	MailTransportSendgrid = "sendgrid"

	DefaultShippingFee = 500
	DefaultTaxRate     = "0.20"
)

const (
	EnvAppEnv                = "BUILDMART_APP_ENV"
	EnvPort                  = "BUILDMART_APP_PORT"
	EnvStateBackend          = "BUILDMART_STATE_BACKEND"
	EnvDBDSN                 = "BUILDMART_DB_DSN"
	EnvDBDriver              = "BUILDMART_DB_DRIVER"
	EnvDBHost                = "BUILDMART_DB_HOST"
	EnvDBUser                = "BUILDMART_DB_USER"
	EnvDBName                = "BUILDMART_DB_NAME"
	EnvRedisURL              = "BUILDMART_REDIS_URL"
	EnvCheckoutOperatorEmail = "BUILDMART_CHECKOUT_OPERATOR_EMAIL"
	EnvCheckoutShippingFee   = "BUILDMART_CHECKOUT_SHIPPING_FEE"
	EnvCheckoutTaxRate       = "BUILDMART_CHECKOUT_TAX_RATE"
	EnvCheckoutMailTransport = "BUILDMART_CHECKOUT_MAIL_TRANSPORT"
	EnvSendgridAPIKey        = "BUILDMART_SENDGRID_API_KEY"
	EnvGCPProjectID          = "BUILDMART_GCP_PROJECT_ID"
)

var postgresDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
