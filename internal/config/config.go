package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hiswaca/etl-console/internal/model"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OIDC      OIDCConfig
	Gateway   GatewayConfig
	Portal    PortalConfig
	ETL       ETLConfig
	R2        R2Config
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerHour  int
	ProcessPerHour int
	ReadPerMin     int
}

type OIDCConfig struct {
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// PortalConfig points at the data portal REST backend
type PortalConfig struct {
	BaseURL           string
	Timeout           int // seconds
	RequestsPerSecond float64
	Burst             int
	ServiceToken      string
}

type ETLConfig struct {
	NarrationCadence time.Duration
	AutoResetAfter   time.Duration
	SubmitTimeout    time.Duration
	PollInterval     time.Duration
	PollTimeout      time.Duration
	ArtifactURLTTL   time.Duration
	DataModels       model.Catalog
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("PORTAL_SERVICE_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("portal.base_url", "PORTAL_BASE_URL", "VITE_API_URL")
	_ = v.BindEnv("portal.timeout", "PORTAL_TIMEOUT")
	_ = v.BindEnv("portal.requests_per_second", "PORTAL_RPS")
	_ = v.BindEnv("portal.burst", "PORTAL_BURST")
	_ = v.BindEnv("portal.service_token", "PORTAL_SERVICE_TOKEN")
	_ = v.BindEnv("etl.narration_cadence", "ETL_NARRATION_CADENCE")
	_ = v.BindEnv("etl.auto_reset_after", "ETL_AUTO_RESET_AFTER")
	_ = v.BindEnv("etl.submit_timeout", "ETL_SUBMIT_TIMEOUT")
	_ = v.BindEnv("etl.poll_interval", "ETL_POLL_INTERVAL")
	_ = v.BindEnv("etl.poll_timeout", "ETL_POLL_TIMEOUT")
	_ = v.BindEnv("etl.artifact_url_ttl", "ETL_ARTIFACT_URL_TTL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	catalog := model.Catalog{}
	if err := v.UnmarshalKey("etl.data_models", &catalog); err != nil || len(catalog) == 0 {
		catalog = model.DefaultCatalog
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour:  v.GetInt("ratelimit.submit_per_hour"),
			ProcessPerHour: v.GetInt("ratelimit.process_per_hour"),
			ReadPerMin:     v.GetInt("ratelimit.read_per_min"),
		},
		OIDC: OIDCConfig{
			ClientID: v.GetString("oidc.client_id"),
			Issuer:   v.GetString("oidc.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Portal: PortalConfig{
			BaseURL:           strings.TrimRight(v.GetString("portal.base_url"), "/"),
			Timeout:           v.GetInt("portal.timeout"),
			RequestsPerSecond: v.GetFloat64("portal.requests_per_second"),
			Burst:             v.GetInt("portal.burst"),
			ServiceToken:      v.GetString("portal.service_token"),
		},
		ETL: ETLConfig{
			NarrationCadence: v.GetDuration("etl.narration_cadence"),
			AutoResetAfter:   v.GetDuration("etl.auto_reset_after"),
			SubmitTimeout:    v.GetDuration("etl.submit_timeout"),
			PollInterval:     v.GetDuration("etl.poll_interval"),
			PollTimeout:      v.GetDuration("etl.poll_timeout"),
			ArtifactURLTTL:   v.GetDuration("etl.artifact_url_ttl"),
			DataModels:       catalog,
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.submit_per_hour", 30)
	v.SetDefault("ratelimit.process_per_hour", 30)
	v.SetDefault("ratelimit.read_per_min", 120)
	v.SetDefault("gateway.enabled", false)

	// Portal backend defaults
	v.SetDefault("portal.base_url", "http://localhost:8000/api")
	v.SetDefault("portal.timeout", 120)
	v.SetDefault("portal.requests_per_second", 10)
	v.SetDefault("portal.burst", 5)

	// ETL console defaults
	v.SetDefault("etl.narration_cadence", "600ms")
	v.SetDefault("etl.auto_reset_after", "30s")
	v.SetDefault("etl.submit_timeout", "5m")
	v.SetDefault("etl.poll_interval", "2s")
	v.SetDefault("etl.poll_timeout", "10m")
	v.SetDefault("etl.artifact_url_ttl", "15m")
}
