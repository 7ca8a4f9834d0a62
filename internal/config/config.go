// Package config loads cart-service settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`
	Coupons CouponConfig  `yaml:"coupons"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Pricing PricingConfig `yaml:"pricing"`
	Cart    CartConfig    `yaml:"cart"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"` // memory, redis or mongo
	Redis   RedisConfig `yaml:"redis"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MongoConfig struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	MaxPoolSize uint64 `yaml:"max_pool_size"`
	MinPoolSize uint64 `yaml:"min_pool_size"`
}

type CouponConfig struct {
	Source          string        `yaml:"source"` // file or mongo
	File            string        `yaml:"file"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	CheckoutTopic     string   `yaml:"checkout_topic"`
	CheckoutGroup     string   `yaml:"checkout_group"`
	NotificationTopic string   `yaml:"notification_topic"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type PricingConfig struct {
	BaseShipping          float64 `yaml:"base_shipping"`
	FreeShippingThreshold float64 `yaml:"free_shipping_threshold"`
}

type CartConfig struct {
	StalenessWindow time.Duration `yaml:"staleness_window"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	NoticeLimit     int           `yaml:"notice_limit"`
	// IdleTimeout closes sessions nobody used for that long; EvictionInterval
	// is how often they are looked for.
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

func Default() *Config {
	return &Config{
		HTTPPort:        "8080",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379", TTL: 30 * 24 * time.Hour},
			Mongo: MongoConfig{
				URI:         "mongodb://localhost:27017",
				Database:    "cart_db",
				MaxPoolSize: 100,
				MinPoolSize: 10,
			},
		},
		Coupons: CouponConfig{
			Source:          "file",
			File:            "configs/coupons.yaml",
			RefreshInterval: time.Minute,
		},
		Kafka: KafkaConfig{
			CheckoutTopic:     "checkout-outbox",
			CheckoutGroup:     "cart-service-consumer",
			NotificationTopic: "cart-notifications",
		},
		Pricing: PricingConfig{BaseShipping: 15, FreeShippingThreshold: 250},
		Cart: CartConfig{
			StalenessWindow:  7 * 24 * time.Hour,
			WriteTimeout:     5 * time.Second,
			NoticeLimit:      20,
			IdleTimeout:      30 * time.Minute,
			EvictionInterval: time.Minute,
		},
		Breaker: BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second},
	}
}

// Load builds the configuration from args (without the program name).
// The YAML path comes from --config or CONFIG_FILE; a missing path is fine,
// an unreadable or invalid file is not.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("cart-service", pflag.ContinueOnError)
	path := flags.String("config", "", "path to a YAML config file")
	port := flags.String("port", "", "HTTP port (overrides config and HTTP_PORT)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *path == "" {
		*path = os.Getenv("CONFIG_FILE")
	}
	if *path != "" {
		if err := cfg.loadFile(*path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", *path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if *port != "" {
		cfg.HTTPPort = *port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Storage.Mongo.URI = getEnv("MONGO_URI", c.Storage.Mongo.URI)
	c.Storage.Mongo.Database = getEnv("MONGO_DATABASE", c.Storage.Mongo.Database)
	c.Coupons.Source = getEnv("COUPON_SOURCE", c.Coupons.Source)
	c.Coupons.File = getEnv("COUPON_FILE", c.Coupons.File)
	c.Kafka.CheckoutTopic = getEnv("CHECKOUT_TOPIC", c.Kafka.CheckoutTopic)
	c.Kafka.NotificationTopic = getEnv("NOTIFICATION_TOPIC", c.Kafka.NotificationTopic)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}

	var errs []error
	var err error
	if c.Storage.Redis.DB, err = getEnvInt("REDIS_DB", c.Storage.Redis.DB); err != nil {
		errs = append(errs, err)
	}
	if c.Cart.StalenessWindow, err = getEnvDuration("CART_STALENESS_WINDOW", c.Cart.StalenessWindow); err != nil {
		errs = append(errs, err)
	}
	if c.Coupons.RefreshInterval, err = getEnvDuration("COUPON_REFRESH_INTERVAL", c.Coupons.RefreshInterval); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Redis.TTL, err = getEnvDuration("REDIS_TTL", c.Storage.Redis.TTL); err != nil {
		errs = append(errs, err)
	}
	if c.Cart.IdleTimeout, err = getEnvDuration("CART_IDLE_TIMEOUT", c.Cart.IdleTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Coupons.Source {
	case "file", "mongo":
	default:
		return fmt.Errorf("unknown coupon source %q", c.Coupons.Source)
	}
	if c.Coupons.Source == "mongo" && c.Storage.Mongo.URI == "" {
		return errors.New("coupon source mongo needs a mongo uri")
	}
	if c.Pricing.BaseShipping < 0 || c.Pricing.FreeShippingThreshold < 0 {
		return errors.New("pricing values must not be negative")
	}
	if c.Cart.StalenessWindow <= 0 {
		return errors.New("cart staleness window must be positive")
	}
	// a record that expires before it turns stale loses carts the
	// staleness rule would still keep
	if ttl := c.Storage.Redis.TTL; ttl > 0 && ttl <= c.Cart.StalenessWindow {
		return fmt.Errorf("redis ttl %s must exceed the cart staleness window %s", ttl, c.Cart.StalenessWindow)
	}
	if c.Storage.Mongo.MinPoolSize > c.Storage.Mongo.MaxPoolSize {
		return errors.New("mongo min pool size exceeds max pool size")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
