package config

// EnvPrefix is handed to envconfig; every field carries its full name in the tag.
const EnvPrefix = "BAZAAR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "BAZAAR_APP_ENV"
	EnvPort               = "BAZAAR_APP_PORT"
	EnvDBDSN              = "BAZAAR_DB_DSN"
	EnvDBHost             = "BAZAAR_DB_HOST"
	EnvDBUser             = "BAZAAR_DB_USER"
	EnvDBName             = "BAZAAR_DB_NAME"
	EnvRedisURL           = "BAZAAR_REDIS_URL"
	EnvRedisAddr          = "BAZAAR_REDIS_ADDR"
	EnvJWTSecret          = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer          = "BAZAAR_JWT_ISSUER"
	EnvJWTExpMins         = "BAZAAR_JWT_EXPIRATION_MINUTES"
	EnvGatewaySecretKey   = "BAZAAR_GATEWAY_SECRET_KEY"
	EnvGatewayCallbackURL = "BAZAAR_GATEWAY_CALLBACK_URL"
	EnvKafkaBrokers       = "BAZAAR_KAFKA_BROKERS"
)
