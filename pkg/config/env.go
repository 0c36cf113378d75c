package config

// EnvPrefix is handed to envconfig; every field carries an explicit tag so it only
// matters for untagged fields.
const EnvPrefix = "SAAKSHY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "SAAKSHY_APP_ENV"
	EnvPort      = "SAAKSHY_APP_PORT"
	EnvDBDSN     = "SAAKSHY_DB_DSN"
	EnvDBDriver  = "SAAKSHY_DB_DRIVER"
	EnvDBHost    = "SAAKSHY_DB_HOST"
	EnvDBUser    = "SAAKSHY_DB_USER"
	EnvDBName    = "SAAKSHY_DB_NAME"
	EnvUseSQLite = "SAAKSHY_USE_SQLITE"
	EnvRedisURL  = "SAAKSHY_REDIS_URL"
	EnvJWTSecret = "SAAKSHY_JWT_SECRET"
	EnvJWTIssuer = "SAAKSHY_JWT_ISSUER"

	EnvLedgerMaxAttempts = "SAAKSHY_LEDGER_COMMAND_MAX_ATTEMPTS"
	EnvPubSubLedgerTopic = "SAAKSHY_PUBSUB_LEDGER_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
