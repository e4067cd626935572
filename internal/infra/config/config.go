package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	customvalidator "github.com/chainproof-io/chainproof/pkg/validator"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Signing  SigningConfig  `mapstructure:"signing"  validate:"required"`
	Chain    ChainConfig    `mapstructure:"chain"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" validate:"required,gte=1024,lte=65535"`
	Mode string `mapstructure:"mode" validate:"required,oneof=development production"`
	// AuthToken protects the admin HTTP surface. Required in production.
	AuthToken string `mapstructure:"auth_token" validate:"required_if=Mode production"`
}

type DatabaseConfig struct {
	URL               string        `mapstructure:"url" validate:"required"`
	TLS               bool          `mapstructure:"tls"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// SigningConfig selects the seal implementation. The hmac provider
// resolves a shared secret from KeySource; the aws_kms provider keeps
// the key inside KMS and needs only the key ARN.
type SigningConfig struct {
	Provider  string `mapstructure:"provider"    validate:"required,oneof=hmac aws_kms"`
	KeySource string `mapstructure:"key_source"  validate:"required_if=Provider hmac,omitempty,oneof=env parameter_store"`
	KeyName   string `mapstructure:"key_name"    validate:"required_if=Provider hmac"`
	KMSKeyARN string `mapstructure:"kms_key_arn" validate:"required_if=Provider aws_kms,omitempty,arn"`
	AWSRegion string `mapstructure:"aws_region"`
}

type ChainConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("CHAINPROOF")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	vip.SetDefault("server.port", 8491)
	vip.SetDefault("server.mode", "development")
	vip.SetDefault("database.max_conns", 8)
	vip.SetDefault("database.min_conns", 1)
	vip.SetDefault("database.max_conn_lifetime", "1h")
	vip.SetDefault("database.max_conn_idle_time", "15m")
	vip.SetDefault("database.health_check_period", "1m")
	vip.SetDefault("signing.provider", "hmac")
	vip.SetDefault("signing.key_source", "env")
	vip.SetDefault("signing.key_name", "CHAINPROOF_SIGNING_KEY")
	vip.SetDefault("chain.max_attempts", 5)
	vip.SetDefault("chain.initial_backoff", "10ms")
	vip.SetDefault("chain.max_backoff", "250ms")

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := customvalidator.RegisterCustomValidators(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
