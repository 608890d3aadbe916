package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/pizza-delivery/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (PIZZA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PIZZA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for pizza images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (PIZZA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Redis        RedisConfig
	Razorpay     RazorpayConfig
	Mail         MailConfig
	Pricing      PricingConfig
	Inventory    InventoryConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig selects the live update bus. Without an address, updates are
// fanned out in process and only reach clients connected to this instance.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address host:port (or REDIS_URL)"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// RazorpayConfig holds payment gateway credentials.
type RazorpayConfig struct {
	KeyID     string        `usage:"Razorpay key id" flag:"razorpay-key-id"`
	KeySecret string        `usage:"Razorpay key secret, also used to verify payment signatures" flag:"razorpay-key-secret"`
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL"`
	Currency  string        `default:"INR" usage:"Order currency"`
	Timeout   time.Duration `default:"10s" usage:"Gateway request timeout"`
}

// MailConfig holds the SMTP relay used for low-stock alerts. When Host is
// empty, alerts are written to the log.
type MailConfig struct {
	Host       string `default:"" usage:"SMTP host"`
	Port       int    `default:"587" usage:"SMTP port"`
	Username   string `default:"" usage:"SMTP username"`
	Password   string `default:"" usage:"SMTP password"`
	From       string `default:"no-reply@pizza.local" usage:"Sender address"`
	AdminEmail string `default:"" usage:"Recipient of low-stock alerts" flag:"admin-email"`
}

// PricingConfig selects how custom pizzas are priced.
type PricingConfig struct {
	Policy          string `default:"flat" usage:"Pricing policy: flat or unit"`
	BasePrice       int64  `default:"300" usage:"Flat policy base price"`
	VeggieSurcharge int64  `default:"20" usage:"Flat policy price per veggie"`
	MeatSurcharge   int64  `default:"40" usage:"Flat policy price per meat"`
}

// InventoryConfig controls the retry of failed stock adjustments.
type InventoryConfig struct {
	SweepInterval time.Duration `default:"30s" usage:"Backlog sweep interval"`
	SweepBatch    int           `default:"50" usage:"Backlog entries retried per sweep"`
	BacklogLimit  int           `default:"1000" usage:"Pending backlog entries before readiness fails"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PIZZA",
		Files:     []string{"config.yaml", "/etc/pizza/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PIZZA_DATABASE_URL or DATABASE_URL")
	}
	if c.Razorpay.KeySecret == "" {
		return errors.New("razorpay key secret is required: set PIZZA_RAZORPAY_KEY_SECRET")
	}
	switch pricing.Policy(c.Pricing.Policy) {
	case pricing.PolicyFlat, pricing.PolicyUnit:
	default:
		return errors.Errorf("unknown pricing policy %q", c.Pricing.Policy)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PIZZA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.Addr = v
		}
	}
}
