package config

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	DB        *sql.DB   `yaml:"db"`
	Batch     Batch     `yaml:"batch"`
	Retry     Retry     `yaml:"retry"`
	Source    Source    `yaml:"source"`
	Queue     *RabbitMQ `yaml:"rabbitmq"`
	Export    Export    `yaml:"export"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort        string        `yaml:"http_port"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Database struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	BusyTimeout int    `yaml:"busy_timeout"`
	Debug       bool   `yaml:"debug"`
}

// Batch holds the flush thresholds of the batch writer.
type Batch struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Retry configures the storage lock retry policy.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type Source struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`
	Twitch       TwitchSource  `yaml:"twitch"`
	YouTube      YouTubeSource `yaml:"youtube"`
}

type TwitchSource struct {
	Username string `yaml:"username"`
	OAuth    string `yaml:"oauth"`
}

type YouTubeSource struct {
	APIKey       string        `yaml:"api_key"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RefreshToken string        `yaml:"refresh_token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

// Enabled reports whether a broker is configured at all.
func (r *RabbitMQ) Enabled() bool {
	return r != nil && r.Host != ""
}

type Export struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	MinIO   MinIO  `yaml:"minio"`
	S3      S3     `yaml:"s3"`
}

type MinIO struct {
	URL             string `yaml:"url"`
	AccessID        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Secure          bool   `yaml:"secure"`
}

type S3 struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "./chat_archive.db")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("batch.size", 100)
	v.SetDefault("batch.flush_interval", 10*time.Second)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", 100*time.Millisecond)
	v.SetDefault("source.max_attempts", 1000)
	v.SetDefault("source.retry_timeout", 32*time.Second)
	v.SetDefault("source.youtube.poll_interval", 5*time.Second)
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("export.backend", "minio")
	v.SetDefault("telemetry.service_name", "chat-archive")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	database := Database{
		Driver:      v.GetString("database.driver"),
		DSN:         v.GetString("database.dsn"),
		BusyTimeout: v.GetInt("database.busy_timeout"),
		Debug:       v.GetBool("database.debug"),
	}
	db, err := OpenDB(database)
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host:         v.GetString("rabbitmq_host"),
		Port:         v.GetInt("rabbitmq_port"),
		User:         v.GetString("rabbitmq_user"),
		Pass:         v.GetString("rabbitmq_pass"),
		ExchangeName: v.GetString("rabbitmq_exchange"),
		Kind:         v.GetString("rabbitmq_kind"),
	}

	return &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:        v.GetString("server.port"),
			Workers:         v.GetInt("server.workers"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: database,
		DB:       db,
		Batch: Batch{
			Size:          v.GetInt("batch.size"),
			FlushInterval: v.GetDuration("batch.flush_interval"),
		},
		Retry: Retry{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
		},
		Source: Source{
			MaxAttempts:  v.GetInt("source.max_attempts"),
			RetryTimeout: v.GetDuration("source.retry_timeout"),
			Twitch: TwitchSource{
				Username: v.GetString("source.twitch.username"),
				OAuth:    v.GetString("source.twitch.oauth"),
			},
			YouTube: YouTubeSource{
				APIKey:       v.GetString("source.youtube.api_key"),
				ClientID:     v.GetString("source.youtube.client_id"),
				ClientSecret: v.GetString("source.youtube.client_secret"),
				RefreshToken: v.GetString("source.youtube.refresh_token"),
				PollInterval: v.GetDuration("source.youtube.poll_interval"),
			},
		},
		Queue: rabbitmq,
		Export: Export{
			Backend: v.GetString("export.backend"),
			Bucket:  v.GetString("export.bucket"),
			MinIO: MinIO{
				URL:             v.GetString("export.minio.url"),
				AccessID:        v.GetString("export.minio.access_id"),
				SecretAccessKey: v.GetString("export.minio.secret_access_key"),
				Secure:          v.GetBool("export.minio.secure"),
			},
			S3: S3{
				Region:          v.GetString("export.s3.region"),
				Endpoint:        v.GetString("export.s3.endpoint"),
				AccessKeyID:     v.GetString("export.s3.access_key_id"),
				SecretAccessKey: v.GetString("export.s3.secret_access_key"),
			},
		},
		Telemetry: Telemetry{
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			ServiceName:  v.GetString("telemetry.service_name"),
		},
	}, nil
}
