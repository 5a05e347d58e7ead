package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Port               string            `mapstructure:"port"`
	Version            string            `mapstructure:"version"`
	SiteSettings       *SiteConfig       `mapstructure:"site"`
	CheckerSettings    *CheckerConfig    `mapstructure:"checker"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
	CacheSettings      *CacheConfig      `mapstructure:"cache"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	RedirectSettings   *RedirectConfig   `mapstructure:"redirect"`
	SecuritySettings   *SecurityConfig   `mapstructure:"security"`
	WorkerSettings     *WorkerConfig     `mapstructure:"worker"`
	SQSSettings        *SQSConfig        `mapstructure:"sqs"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
}

type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Requests that do not match a redirect rule are proxied here. Empty means 404.
	UpstreamURL         string `mapstructure:"upstream_url"`
	RedirectStatus      int    `mapstructure:"redirect_status"`
	EditURLTemplate     string `mapstructure:"edit_url_template"`
	RedirectionAdminURL string `mapstructure:"redirection_admin_url"`
}

type CheckerConfig struct {
	WorkersNum    int           `mapstructure:"workers_num"`
	UserAgent     string        `mapstructure:"user_agent"`
	RequestsLimit int           `mapstructure:"requests_limit"`
	TimeInterval  time.Duration `mapstructure:"time_interval"`
}

type HttpClientConfig struct {
	RequestTimeout            time.Duration `mapstructure:"request_timeout"`
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Servers []string      `mapstructure:"servers"`
	Ttl     time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type RedirectConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type SecurityConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTtl    time.Duration `mapstructure:"token_ttl"`
}

type WorkerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	WorkersNum int  `mapstructure:"workers_num"`
}

type SQSConfig struct {
	AwsBaseEndpoint     string `mapstructure:"aws_base_endpoint"`
	Region              string `mapstructure:"region"`
	QueueName           string `mapstructure:"queue_name"`
	MaxNumberOfMessages int32  `mapstructure:"max_number_of_messages"`
	WaitTimeSeconds     int32  `mapstructure:"wait_time_seconds"`
	VisibilityTimeout   int32  `mapstructure:"visibility_timeout"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr                []string      `mapstructure:"addr"`
	WriteTopicName      string        `mapstructure:"write_topic_name"`
	DeadLetterTopicName string        `mapstructure:"dlq_topic_name"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	RequiredAsks        int           `mapstructure:"required_acks"`
	Async               bool          `mapstructure:"async"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

// MustLoad reads config.yaml from the working directory and exits on any error.
func MustLoad() *Config {
	cfg, err := Load(path.Join("."))
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err = cfg.Validate(); err != nil {
		slog.Error("invalid configuration.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

// Load reads config.yaml from dir. Environment variables override file values.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "link-repair-kit")
	v.SetDefault("port", "8080")
	v.SetDefault("site.redirect_status", 302)
	v.SetDefault("checker.workers_num", -1)
	v.SetDefault("checker.user_agent", "link-repair-kit/1.0")
	v.SetDefault("http_client.request_timeout", 30*time.Second)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("redirect.refresh_interval", time.Minute)
	v.SetDefault("security.token_ttl", 12*time.Hour)
	v.SetDefault("worker.workers_num", 1)
}

func (c *Config) Validate() error {
	if c.SiteSettings == nil || c.SiteSettings.BaseURL == "" {
		return errors.New("site.base_url is required")
	}
	base, err := url.Parse(c.SiteSettings.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute url: %q", c.SiteSettings.BaseURL)
	}
	switch c.SiteSettings.RedirectStatus {
	case 301, 302, 307, 308:
	default:
		return fmt.Errorf("site.redirect_status %d is not a redirect status", c.SiteSettings.RedirectStatus)
	}
	if c.CheckerSettings == nil || c.CheckerSettings.WorkersNum == 0 || c.CheckerSettings.WorkersNum < -1 {
		return errors.New("checker.workers_num must be positive or -1")
	}
	if c.SecuritySettings == nil || c.SecuritySettings.TokenSecret == "" {
		return errors.New("security.token_secret is required")
	}
	if c.WorkerSettings != nil && c.WorkerSettings.Enabled {
		if c.SQSSettings == nil || c.SQSSettings.QueueName == "" {
			return errors.New("sqs.queue_name is required when the worker is enabled")
		}
		if c.KafkaSettings == nil || c.KafkaSettings.Producer == nil || len(c.KafkaSettings.Producer.Addr) == 0 {
			return errors.New("kafka.producer.addr is required when the worker is enabled")
		}
		if c.KafkaSettings.Producer.WriteTopicName == "" || c.KafkaSettings.Producer.DeadLetterTopicName == "" {
			return errors.New("kafka.producer topic names are required when the worker is enabled")
		}
	}

	return nil
}
