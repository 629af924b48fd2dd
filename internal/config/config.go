package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const (
	defaultAddress        = ":4000"
	defaultDriver         = "mysql"
	defaultPaymentMode    = "demo"
	defaultUnlockFee      = "5000"
	defaultCurrency       = "NGN"
	defaultGatewayTimeout = 10 * time.Second
	defaultDashboardPath  = "/client/dashboard"
	defaultVerifyRPS      = 1.0
	defaultVerifyBurst    = 5
	defaultLockTTL        = 10 * time.Second
)

type Config struct {
	Server struct {
		Address        string   `yaml:"address"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Payment struct {
		Mode            string  `yaml:"mode"`
		PaystackSecret  string  `yaml:"paystack_secret_key"`
		PaystackBaseURL string  `yaml:"paystack_base_url"`
		CallbackURL     string  `yaml:"callback_url"`
		CheckoutBaseURL string  `yaml:"checkout_base_url"`
		UnlockFee       string  `yaml:"unlock_fee"`
		Currency        string  `yaml:"currency"`
		GatewayTimeoutS int     `yaml:"gateway_timeout_seconds"`
		ReferenceSecret string  `yaml:"reference_secret"`
		DashboardPath   string  `yaml:"dashboard_path"`
		VerifyRPS       float64 `yaml:"verify_rps"`
		VerifyBurst     int     `yaml:"verify_burst"`
	} `yaml:"payment"`
	Receipts struct {
		Bucket    string `yaml:"bucket"`
		Endpoint  string `yaml:"endpoint"`
		Region    string `yaml:"region"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"receipts"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	// Seed is loaded into the in-memory store when database.driver is memory.
	Seed Seed `yaml:"seed"`
}

type Seed struct {
	Properties []SeedProperty `yaml:"properties"`
	Clients    []SeedClient   `yaml:"clients"`
}

type SeedProperty struct {
	ID         int    `yaml:"id"`
	Title      string `yaml:"title"`
	Address    string `yaml:"address"`
	AgentID    int    `yaml:"agent_id"`
	AgentName  string `yaml:"agent_name"`
	AgentPhone string `yaml:"agent_phone"`
}

type SeedClient struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// LoadConfig reads the optional YAML file at CONFIG_PATH, then applies
// environment overrides and defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitCSV(v)
	}
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		c.Redis.DB = *v
	}
	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	setString(&c.Payment.Mode, "PAYMENT_MODE")
	setString(&c.Payment.PaystackSecret, "PAYSTACK_SECRET_KEY")
	setString(&c.Payment.PaystackBaseURL, "PAYSTACK_BASE_URL")
	setString(&c.Payment.CallbackURL, "PAYSTACK_CALLBACK_URL")
	setString(&c.Payment.CheckoutBaseURL, "CHECKOUT_BASE_URL")
	setString(&c.Payment.UnlockFee, "UNLOCK_FEE")
	setString(&c.Payment.Currency, "UNLOCK_CURRENCY")
	setString(&c.Payment.ReferenceSecret, "REFERENCE_SECRET")
	setString(&c.Payment.DashboardPath, "DASHBOARD_PATH")
	if v, err := readIntEnv("GATEWAY_TIMEOUT_SECONDS"); err != nil {
		return fmt.Errorf("parse GATEWAY_TIMEOUT_SECONDS: %w", err)
	} else if v != nil {
		c.Payment.GatewayTimeoutS = *v
	}
	if v := os.Getenv("VERIFY_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse VERIFY_RPS: %w", err)
		}
		c.Payment.VerifyRPS = rps
	}
	if v, err := readIntEnv("VERIFY_BURST"); err != nil {
		return fmt.Errorf("parse VERIFY_BURST: %w", err)
	} else if v != nil {
		c.Payment.VerifyBurst = *v
	}

	setString(&c.Receipts.Bucket, "RECEIPTS_BUCKET")
	setString(&c.Receipts.Endpoint, "RECEIPTS_ENDPOINT")
	setString(&c.Receipts.Region, "RECEIPTS_REGION")
	setString(&c.Receipts.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&c.Receipts.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	c.Payment.Mode = strings.ToLower(strings.TrimSpace(c.Payment.Mode))
	if c.Payment.Mode == "" {
		c.Payment.Mode = defaultPaymentMode
	}
	if c.Payment.UnlockFee == "" {
		c.Payment.UnlockFee = defaultUnlockFee
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = defaultCurrency
	}
	if c.Payment.DashboardPath == "" {
		c.Payment.DashboardPath = defaultDashboardPath
	}
	if c.Payment.VerifyRPS == 0 {
		c.Payment.VerifyRPS = defaultVerifyRPS
	}
	if c.Payment.VerifyBurst == 0 {
		c.Payment.VerifyBurst = defaultVerifyBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects combinations that must not reach a running server.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "pgx":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for " + c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	switch c.Payment.Mode {
	case "demo":
	case "live":
		if strings.TrimSpace(c.Payment.PaystackSecret) == "" {
			return errors.New("PAYSTACK_SECRET_KEY is required when PAYMENT_MODE=live")
		}
	default:
		return fmt.Errorf("unsupported PAYMENT_MODE %q", c.Payment.Mode)
	}
	if _, err := c.UnlockFee(); err != nil {
		return err
	}
	if c.Payment.GatewayTimeoutS < 0 {
		return errors.New("GATEWAY_TIMEOUT_SECONDS must not be negative")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// UnlockFee parses the configured fee.
func (c Config) UnlockFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Payment.UnlockFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse UNLOCK_FEE: %w", err)
	}
	if !fee.IsPositive() {
		return decimal.Zero, errors.New("UNLOCK_FEE must be positive")
	}
	return fee, nil
}

func (c Config) GatewayTimeout() time.Duration {
	if c.Payment.GatewayTimeoutS <= 0 {
		return defaultGatewayTimeout
	}
	return time.Duration(c.Payment.GatewayTimeoutS) * time.Second
}

func (c Config) LockTTL() time.Duration { return defaultLockTTL }

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
