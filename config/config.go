// Package config provides configuration management for the storefront payment service.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"storefront/entity"
	"time"
)

// Config holds all configuration for the storefront payment service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug    bool  `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64 `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	Listen     struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5100" validate:"required"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:""`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"storefront"`
	} `yaml:"mongo"`
	Merchant struct {
		Key         string `yaml:"key" env:"MERCHANT_KEY" env-default:"" validate:"required"`
		Salt        string `yaml:"salt" env:"MERCHANT_SALT" env-default:"" validate:"required"`
		ApiSalt     string `yaml:"api_salt" env:"MERCHANT_API_SALT" env-default:""`
		Environment string `yaml:"environment" env:"MERCHANT_ENVIRONMENT" env-default:"sandbox" validate:"oneof=sandbox production"`
		SuccessUrl  string `yaml:"success_url" env:"MERCHANT_SUCCESS_URL" env-default:"" validate:"omitempty,url"`
		FailureUrl  string `yaml:"failure_url" env:"MERCHANT_FAILURE_URL" env-default:"" validate:"omitempty,url"`
	} `yaml:"merchant"`
	Gateway struct {
		Timeout    time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT" env-default:"30s" validate:"gt=0"`
		MaxRetries uint64        `yaml:"max_retries" env:"GATEWAY_MAX_RETRIES" env-default:"3" validate:"lte=10"`
		RetryDelay time.Duration `yaml:"retry_delay" env:"GATEWAY_RETRY_DELAY" env-default:"500ms" validate:"gt=0"`
	} `yaml:"gateway"`
	Log struct {
		File       string `yaml:"file" env:"LOG_FILE" env-default:""`
		MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"100" validate:"min=1"`
		MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"7" validate:"min=0"`
		MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"30" validate:"min=1"`
	} `yaml:"log"`
}

// GetConfig loads configuration from the specified YAML file path.
// Configuration values can be overridden by environment variables.
// Every call returns a new Config; nothing is cached at package level.
//
// A missing merchant key or salt is reported as *entity.ConfigurationError
// and must stop the process.
//
// Example:
//
//	cfg, err := config.GetConfig("config.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetConfig(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("load config: %w; %s", err, desc)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks struct constraints and maps merchant failures to ConfigurationError.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate config: %w", err)
	}
	first := validationErrors[0]
	field := first.Namespace()
	if first.Tag() == "required" {
		return &entity.ConfigurationError{Field: field}
	}
	return &entity.ConfigurationError{Field: field, Reason: fmt.Sprintf("failed on %s", first.Tag())}
}

// Credential builds the immutable merchant credential used by the payment core.
func (c *Config) Credential() (*entity.MerchantCredential, error) {
	return entity.NewMerchantCredential(c.Merchant.Key, c.Merchant.Salt, entity.Environment(c.Merchant.Environment))
}
