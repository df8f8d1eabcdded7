package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the webscout service
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Exploration ExplorationConfig `mapstructure:"exploration"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Janitor     JanitorConfig     `mapstructure:"janitor"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains the optional LLM provider configuration used by the
// AI-backed planner/analyzer decorators and the scraper generator.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or empty to disable
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BrowserConfig contains headless browser settings for the actuator
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxBodyChars      int           `mapstructure:"max_body_chars"`
}

// ExplorationConfig bounds the orchestration loop
type ExplorationConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	StepTimeout       time.Duration `mapstructure:"step_timeout"`
	EnableScreenshots bool          `mapstructure:"enable_screenshots"`
}

// GenerationConfig bounds the scraper generate/test/refine pipeline
type GenerationConfig struct {
	MaxIterations  int           `mapstructure:"max_iterations"`
	TestTimeout    time.Duration `mapstructure:"test_timeout"`
	Interpreter    string        `mapstructure:"interpreter"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

// StorageConfig contains optional persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis snapshot settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PostgresConfig contains archive database settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// JanitorConfig schedules the stale-session sweep
type JanitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cron     string        `mapstructure:"cron"`
	StaleTTL time.Duration `mapstructure:"stale_ttl"`
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webscout")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WEBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults plus environment are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")

	v.SetDefault("server.listen", ":10001")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Webscout/1.0 (+contact@example.com)")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.max_body_chars", 20000)

	v.SetDefault("exploration.max_iterations", 15)
	v.SetDefault("exploration.max_concurrent", 4)
	v.SetDefault("exploration.step_timeout", "60s")
	v.SetDefault("exploration.enable_screenshots", true)

	v.SetDefault("generation.max_iterations", 5)
	v.SetDefault("generation.test_timeout", "30s")
	v.SetDefault("generation.interpreter", "python3")
	v.SetDefault("generation.max_output_bytes", 1<<20)

	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.ttl", "24h")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.cron", "@hourly")
	v.SetDefault("janitor.stale_ttl", "24h")

	v.SetDefault("telemetry.enabled", true)
}

func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		v.Set("llm.api_key", apiKey)
		if v.GetString("llm.provider") == "" {
			v.Set("llm.provider", "openai")
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		v.Set("storage.redis.port", port)
	}
	if secret := os.Getenv("WEBSCOUT_JWT_SECRET"); secret != "" {
		v.Set("server.jwt_secret", secret)
	}
}

func validateConfig(config *Config) error {
	if config.Exploration.MaxIterations <= 0 {
		return fmt.Errorf("exploration.max_iterations must be positive")
	}
	if config.Exploration.MaxConcurrent <= 0 {
		return fmt.Errorf("exploration.max_concurrent must be positive")
	}
	if config.Generation.MaxIterations <= 0 {
		return fmt.Errorf("generation.max_iterations must be positive")
	}
	if config.Generation.TestTimeout <= 0 {
		return fmt.Errorf("generation.test_timeout must be positive")
	}
	if config.LLM.Provider != "" && config.LLM.Provider != "openai" {
		return fmt.Errorf("unsupported llm provider: %s", config.LLM.Provider)
	}
	if config.LLM.Provider != "" && config.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key required when llm.provider is set")
	}
	return nil
}

// PostgresDSN assembles a connection string from the postgres section.
// Returns empty when the archive database is not configured.
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	if pg.URL != "" {
		return pg.URL
	}
	if pg.Host == "" || pg.DBName == "" {
		return ""
	}
	port := pg.Port
	if port == "" {
		port = "5432"
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", pg.User, pg.Password, pg.Host, port, pg.DBName, ssl)
}

// RedisAddr returns host:port for the snapshot store, empty when disabled.
func (c *Config) RedisAddr() string {
	r := c.Storage.Redis
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}
