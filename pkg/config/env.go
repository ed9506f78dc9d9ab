package config

// EnvPrefix is empty because every field tag carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "COURIER_APP_ENV"
	EnvPort         = "COURIER_APP_PORT"
	EnvLogLevel     = "COURIER_LOG_LEVEL"
	EnvDBDSN        = "COURIER_DB_DSN"
	EnvDBHost       = "COURIER_DB_HOST"
	EnvDBUser       = "COURIER_DB_USER"
	EnvDBName       = "COURIER_DB_NAME"
	EnvRedisURL     = "COURIER_REDIS_URL"
	EnvGCPProjectID = "COURIER_GCP_PROJECT_ID"

	EnvPubSubNotificationTopic = "COURIER_PUBSUB_NOTIFICATION_TOPIC"

	EnvDispatchSweepInterval  = "COURIER_DISPATCH_SWEEP_INTERVAL"
	EnvIncentivesTimezone     = "COURIER_INCENTIVES_TIMEZONE"
	EnvEarningsFallbackGlobal = "COURIER_EARNINGS_FALLBACK_GLOBAL"
	EnvEarningsPeakTimezone   = "COURIER_EARNINGS_PEAK_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
