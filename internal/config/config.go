package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/validator"
)

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"          validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"     validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	BucketName      string `mapstructure:"bucket_name"       validate:"required"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type AzureStorageConfig struct {
	AccountName string `mapstructure:"account_name" validate:"required"`
	AccountKey  string `mapstructure:"account_key"  validate:"required"`
	ServiceURL  string `mapstructure:"service_url"  validate:"required"`
	Container   string `mapstructure:"container"    validate:"required"`
}

// StorageConfig selects the artifact store. Backend is "s3" or "azure";
// only the matching sub-config needs to be present.
type StorageConfig struct {
	Backend string              `mapstructure:"backend" validate:"required,eq=s3|eq=azure"`
	S3      *S3Config           `mapstructure:"s3"`
	Azure   *AzureStorageConfig `mapstructure:"azure"`
}

type CRMConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	LocationID string `mapstructure:"location_id"`
}

type NotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// ClinicConfig renders onto every generated document.
type ClinicConfig struct {
	Name    string `mapstructure:"name"    validate:"required"`
	Address string `mapstructure:"address" validate:"required"`
	Phone   string `mapstructure:"phone"   validate:"required"`
}

type RateLimitConfig struct {
	RedisHost       string `mapstructure:"redis_host"`
	GlobalPerMinute int64  `mapstructure:"global_per_minute"`
	SubmitPerMinute int64  `mapstructure:"submit_per_minute"`
	FailOpen        bool   `mapstructure:"fail_open"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

// See consentapi.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig  `mapstructure:"postgres"  validate:"required"`
	Storage              *StorageConfig   `mapstructure:"storage"   validate:"required"`
	Clinic               *ClinicConfig    `mapstructure:"clinic"    validate:"required"`
	Logging              *LoggingConfig   `mapstructure:"logging"   validate:"required"`
	CRM                  *CRMConfig       `mapstructure:"crm"`
	Notify               *NotifyConfig    `mapstructure:"notify"`
	RateLimit            *RateLimitConfig `mapstructure:"ratelimit"`
	CatalogDir           string           `mapstructure:"catalog_dir"            validate:"required"`
	ListenAddress        string           `mapstructure:"listen_address"         validate:"required"`
	GracefulShutdownSecs int64            `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel                string = "logging.app.level"
	AzureAccountKey            string = "storage.azure.account_key"
	CatalogDir                 string = "catalog_dir"
	CRMAPIKey                  string = "crm.api_key" // #nosec
	EnvPrefix                  string = "consentapi"
	GlobalPerMinute            string = "ratelimit.global_per_minute"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	ListenAddress              string = "listen_address"
	NotifyWebhookURL           string = "notify.webhook_url"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresConnectonTTL       string = "postgres.connection_ttl"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RedisHost                  string = "ratelimit.redis_host"
	S3AccessKeyID              string = "storage.s3.access_key_id"
	S3SecretAccessKey          string = "storage.s3.secret_access_key" // #nosec
	S3SSLEnabled               string = "storage.s3.ssl_enabled"
	SubmitPerMinute            string = "ratelimit.submit_per_minute"
	UseOTLP                    string = "logging.use_otlp"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("consentapi")

	v.AddConfigPath("/etc/consentapi/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	err := v.BindEnv(PostgresPassword)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(S3AccessKeyID)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(S3SecretAccessKey)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(AzureAccountKey)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(CRMAPIKey)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(NotifyWebhookURL)
	if err != nil {
		return nil, err
	}

	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(CatalogDir, "catalogs")
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectonTTL, 10*time.Minute)
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(S3SSLEnabled, true)

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(GlobalPerMinute, 0)
	v.SetDefault(SubmitPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)

	v.SetDefault(UseOTLP, false)

	v.SetDefault(GracefulShutdownSecs, 30)

	err = v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Database,
	)
}
