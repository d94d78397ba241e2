package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"prod"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Inference InferenceConfig `yaml:"inference"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	API       APIConfig       `yaml:"api"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Poll      PollConfig      `yaml:"poll"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Notify    NotifyConfig    `yaml:"notify"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Address      string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env-default:"1048576"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver         string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path           string        `yaml:"path" env:"STORAGE_PATH" env-default:"/var/lib/motordiag/readings.db"`
	DSN            string        `yaml:"dsn" env:"STORAGE_DSN"`
	Retention      time.Duration `yaml:"retention" env-default:"168h"`
	MemoryCapacity int           `yaml:"memory_capacity" env-default:"1000"`
}

type ArtifactsConfig struct {
	Scaler string      `yaml:"scaler" env:"ARTIFACT_SCALER" env-required:"true"`
	Model  string      `yaml:"model" env:"ARTIFACT_MODEL"`
	Labels string      `yaml:"labels" env:"ARTIFACT_LABELS" env-required:"true"`
	S3     S3Config    `yaml:"s3"`
	MinIO  MinIOConfig `yaml:"minio"`
}

type S3Config struct {
	Region string `yaml:"region" env:"AWS_REGION"`
}

type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MINIO_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" env-default:"true"`
}

// Inference backends.
const (
	BackendLocal     = "local"
	BackendSageMaker = "sagemaker"
)

type InferenceConfig struct {
	Backend   string          `yaml:"backend" env:"INFERENCE_BACKEND" env-default:"local"`
	PadWindow bool            `yaml:"pad_window" env:"INFERENCE_PAD_WINDOW" env-default:"false"`
	SageMaker SageMakerConfig `yaml:"sagemaker"`
}

type SageMakerConfig struct {
	Region   string `yaml:"region" env:"SAGEMAKER_REGION"`
	Endpoint string `yaml:"endpoint" env:"SAGEMAKER_ENDPOINT"`
	Window   int    `yaml:"window" env-default:"12"`
	Channels int    `yaml:"channels" env-default:"1"`
}

type ProfilesConfig struct {
	Path string `yaml:"path" env:"PROFILES_PATH"`
}

type APIConfig struct {
	KeyHashes []string `yaml:"key_hashes" env:"API_KEY_HASHES" env-separator:","`
}

type MQTTConfig struct {
	Enabled   bool          `yaml:"enabled" env:"MQTT_ENABLED" env-default:"false"`
	BrokerURL string        `yaml:"broker_url" env:"MQTT_BROKER_URL" env-default:"mqtt://localhost:1883"`
	ClientID  string        `yaml:"client_id" env:"MQTT_CLIENT_ID" env-default:"motordiag"`
	Topic     string        `yaml:"topic" env:"MQTT_TOPIC" env-default:"motors/+/telemetry"`
	QoS       int           `yaml:"qos" env-default:"1"`
	Username  string        `yaml:"username" env:"MQTT_USERNAME"`
	Password  string        `yaml:"password" env:"MQTT_PASSWORD"`
	KeepAlive time.Duration `yaml:"keep_alive" env-default:"30s"`
}

type PollConfig struct {
	Enabled  bool              `yaml:"enabled" env:"POLL_ENABLED" env-default:"false"`
	URL      string            `yaml:"url" env:"POLL_URL"`
	Method   string            `yaml:"method" env-default:"GET"`
	Body     string            `yaml:"body"`
	Interval time.Duration     `yaml:"interval" env-default:"10s"`
	Timeout  time.Duration     `yaml:"timeout" env-default:"5s"`
	Fields   map[string]string `yaml:"fields"`
}

type MonitorConfig struct {
	Enabled           bool          `yaml:"enabled" env-default:"true"`
	Interval          time.Duration `yaml:"interval" env-default:"10s"`
	RULAlertThreshold int           `yaml:"rul_alert_threshold" env-default:"5000"`
	PruneInterval     time.Duration `yaml:"prune_interval" env-default:"1h"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	Token      string        `yaml:"token" env:"NOTIFY_TOKEN"`
	Timeout    time.Duration `yaml:"timeout" env-default:"10s"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"5"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"60s"`
}

type HealthConfig struct {
	Address string `yaml:"address" env:"HEALTH_ADDRESS" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// ResolvePath picks the config file: explicit path, then CONFIG_PATH, then the default location.
func ResolvePath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	return configPath
}

func Load(configPath string) (*Config, error) {
	configPath = ResolvePath(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Inference.Backend {
	case BackendLocal:
		if c.Artifacts.Model == "" {
			return errors.New("artifacts.model is required for the local backend")
		}
	case BackendSageMaker:
		if c.Inference.SageMaker.Endpoint == "" {
			return errors.New("inference.sagemaker.endpoint is required for the sagemaker backend")
		}
		if c.Inference.SageMaker.Window <= 0 || c.Inference.SageMaker.Channels <= 0 {
			return errors.New("inference.sagemaker window and channels must be positive")
		}
	default:
		return fmt.Errorf("unknown inference backend %q", c.Inference.Backend)
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if c.Poll.Enabled && c.Poll.URL == "" {
		return errors.New("poll.url is required when polling is enabled")
	}

	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be positive")
	}

	return nil
}
