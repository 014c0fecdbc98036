package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Grocy         GrocyConfig         `mapstructure:"grocy"`
	OpenFoodFacts OpenFoodFactsConfig `mapstructure:"openfoodfacts"`
	MarktGuru     MarktGuruConfig     `mapstructure:"marktguru"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Storage       StorageConfig       `mapstructure:"storage"`
	ProductsDB    ProductsDBConfig    `mapstructure:"products_db"`
	Planner       PlannerConfig       `mapstructure:"planner"`
	Forecast      ForecastConfig      `mapstructure:"forecast"`
	Index         IndexConfig         `mapstructure:"index"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GrocyConfig holds the catalog service connection
type GrocyConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	APIKey    string  `mapstructure:"api_key"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// OpenFoodFactsConfig holds the product database API configuration
type OpenFoodFactsConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// MarktGuruConfig holds the offer provider configuration
type MarktGuruConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	ClientKey string        `mapstructure:"client_key"`
	ZipCode   string        `mapstructure:"zip_code"`
	RateLimit float64       `mapstructure:"rate_limit"`
	MaxAge    time.Duration `mapstructure:"max_age"`
}

// CacheConfig holds product fact cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects the forecast model store
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// ProductsDBConfig points at an optional cleaned product dump
type ProductsDBConfig struct {
	Path string `mapstructure:"path"`
}

// PlannerConfig holds shopping list generation settings
type PlannerConfig struct {
	MaxStockDays       float64       `mapstructure:"max_stock_days"`
	TargetListID       int           `mapstructure:"target_list_id"`
	StoresToVisit      []string      `mapstructure:"stores_to_visit"`
	Period             time.Duration `mapstructure:"period"`
	Concurrency        int           `mapstructure:"concurrency"`
	QuantityPrecedence string        `mapstructure:"quantity_precedence"` // "barcode" or "external"
}

// ForecastConfig holds model training settings
type ForecastConfig struct {
	Workers int           `mapstructure:"workers"`
	Period  time.Duration `mapstructure:"period"`
}

// IndexConfig holds catalog index rebuild settings
type IndexConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// Load loads configuration from a .env file, environment variables and
// config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pantrylens/")

	// PANTRYLENS_GROCY_API_KEY maps to grocy.api_key
	v.SetEnvPrefix("PANTRYLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values. Every key needs a default
// so that environment variables are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	v.SetDefault("grocy.base_url", "")
	v.SetDefault("grocy.api_key", "")
	v.SetDefault("grocy.rate_limit", 20)

	v.SetDefault("openfoodfacts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("openfoodfacts.rate_limit", 1.5)

	v.SetDefault("marktguru.base_url", "https://api.marktguru.de")
	v.SetDefault("marktguru.api_key", "")
	v.SetDefault("marktguru.client_key", "")
	v.SetDefault("marktguru.zip_code", "")
	v.SetDefault("marktguru.rate_limit", 2)
	v.SetDefault("marktguru.max_age", "24h")

	v.SetDefault("cache.ttl", "720h") // 30 days

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "pantrylens.db")

	v.SetDefault("products_db.path", "")

	v.SetDefault("planner.max_stock_days", 180)
	v.SetDefault("planner.target_list_id", 1)
	v.SetDefault("planner.stores_to_visit", []string{})
	v.SetDefault("planner.period", "12h")
	v.SetDefault("planner.concurrency", 8)
	v.SetDefault("planner.quantity_precedence", "barcode")

	v.SetDefault("forecast.workers", 2)
	v.SetDefault("forecast.period", "24h")

	v.SetDefault("index.period", "1h")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Grocy.BaseURL == "" {
		return fmt.Errorf("grocy base URL is required (set PANTRYLENS_GROCY_BASE_URL)")
	}
	if config.Grocy.APIKey == "" {
		return fmt.Errorf("grocy API key is required (set PANTRYLENS_GROCY_API_KEY)")
	}

	if config.Storage.Driver != "sqlite" && config.Storage.Driver != "postgres" {
		return fmt.Errorf("storage driver must be 'sqlite' or 'postgres', got: %s", config.Storage.Driver)
	}
	if config.Storage.DSN == "" {
		return fmt.Errorf("storage DSN is required")
	}

	if config.Planner.MaxStockDays <= 0 {
		return fmt.Errorf("planner max stock days must be positive, got: %v", config.Planner.MaxStockDays)
	}
	switch config.Planner.QuantityPrecedence {
	case "barcode", "external":
	default:
		return fmt.Errorf("quantity precedence must be 'barcode' or 'external', got: %s", config.Planner.QuantityPrecedence)
	}

	for name, period := range map[string]time.Duration{
		"planner":  config.Planner.Period,
		"forecast": config.Forecast.Period,
		"index":    config.Index.Period,
	} {
		if period <= 0 {
			return fmt.Errorf("%s period must be positive, got: %s", name, period)
		}
	}

	return nil
}
