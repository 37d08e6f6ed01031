// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	SeedDefaultOrg bool

	Vendors VendorConfig
}

// VendorConfig carries the per-vendor credentials the refresher and the
// adapters are constructed with. Nothing reads these from the environment
// after startup.
type VendorConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenURL     string

	AzureClientID     string
	AzureClientSecret string
	AzureTokenURL     string // templated with {tenant}
	AzureAPIBase      string

	AWSRegion      string
	AWSSessionName string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "cloudtally"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cloudtally"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SeedDefaultOrg: getenvBool("SEED_DEFAULT_ORG", false),

		Vendors: VendorConfig{
			GoogleClientID:     strings.TrimSpace(getenv("GOOGLE_DATA_CLIENT_ID", "")),
			GoogleClientSecret: strings.TrimSpace(getenv("GOOGLE_DATA_CLIENT_SECRET", "")),
			GoogleTokenURL:     getenv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),

			AzureClientID:     strings.TrimSpace(getenv("AZURE_DATA_CLIENT_ID", "")),
			AzureClientSecret: strings.TrimSpace(getenv("AZURE_DATA_CLIENT_SECRET", "")),
			AzureTokenURL:     getenv("AZURE_TOKEN_URL", "https://login.microsoftonline.com/{tenant}/oauth2/v2.0/token"),
			AzureAPIBase:      getenv("AZURE_API_BASE", "https://management.azure.com"),

			AWSRegion:      getenv("AWS_REGION", "us-east-1"),
			AWSSessionName: getenv("AWS_SESSION_NAME", "TenantDataPull"),
		},
	}

	return cfg
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewIngestionConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
