package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Mail      MailConfig      `mapstructure:"mail"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	NodeID          int64         `mapstructure:"node_id"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // postgres, sqlite, mysql
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Debug        bool          `mapstructure:"debug"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	ProductTTL time.Duration `mapstructure:"product_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Mode       string `mapstructure:"mode"`
	FileEnable bool   `mapstructure:"file_enable"`
	Filename   string `mapstructure:"filename"`
}

// GatewayConfig VNPay 风格的支付网关
type GatewayConfig struct {
	PayURL      string        `mapstructure:"pay_url"`
	TmnCode     string        `mapstructure:"tmn_code"`
	HashSecret  string        `mapstructure:"hash_secret"`
	ReturnURL   string        `mapstructure:"return_url"`
	SuccessURL  string        `mapstructure:"success_url"`
	FailureURL  string        `mapstructure:"failure_url"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type NotifyConfig struct {
	Workers     int           `mapstructure:"workers"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type InventoryConfig struct {
	LowStockThreshold int `mapstructure:"low_stock_threshold"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TelemetryConfig struct {
	ServiceName    string        `mapstructure:"service_name"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// SweeperConfig 未支付网关订单清理
type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	UnpaidTTL time.Duration `mapstructure:"unpaid_ttl"`
	BatchSize int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.node_id", 1)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=bookstore port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_lifetime", time.Hour)

	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("redis.product_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "production")

	v.SetDefault("gateway.pay_url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("gateway.return_url", "http://localhost:8080/api/v1/payment/gateway-return")
	v.SetDefault("gateway.success_url", "http://localhost:3000/payment/success")
	v.SetDefault("gateway.failure_url", "http://localhost:3000/payment/failure")
	v.SetDefault("gateway.expire_after", 15*time.Minute)
	v.SetDefault("gateway.rate_per_sec", 20.0)
	v.SetDefault("gateway.rate_burst", 40)

	v.SetDefault("mail.port", 587)
	v.SetDefault("notify.workers", 16)
	v.SetDefault("notify.send_timeout", 10*time.Second)

	v.SetDefault("inventory.low_stock_threshold", 5)

	v.SetDefault("jwt.issuer", "bookstore")

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("telemetry.service_name", "bookstore")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.metric_interval", 30*time.Second)

	v.SetDefault("sweeper.schedule", "@every 5m")
	v.SetDefault("sweeper.unpaid_ttl", 24*time.Hour)
	v.SetDefault("sweeper.batch_size", 100)
}

// Load 读取配置：.env -> 配置文件 -> BOOKSTORE_* 环境变量
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BOOKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Inventory.LowStockThreshold < 0 {
		return fmt.Errorf("inventory.low_stock_threshold must be >= 0")
	}
	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		return fmt.Errorf("server.node_id must be in [0,1023]")
	}
	return nil
}
