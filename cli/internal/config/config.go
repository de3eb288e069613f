package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// Config holds the CLI configuration.
type Config struct {
	DatabaseURL string
	Dialect     string
	Debug       bool
}

// LoadConfig loads configuration from config files, .env files and the
// environment. A plain DATABASE_URL variable wins over everything else.
func LoadConfig() (*Config, error) {
	viper.SetFs(AppFs)

	// Find home directory
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	// Set config file paths
	viper.SetConfigName(".singlefetch")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "singlefetch"))

	// Set environment variable prefix
	viper.SetEnvPrefix("SINGLEFETCH")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("dialect", "postgres")
	viper.SetDefault("debug", false)

	// Try to read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Load .env file if it exists
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	// Load .env.local if it exists (higher priority)
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	cfg := &Config{
		DatabaseURL: viper.GetString("database_url"),
		Dialect:     viper.GetString("dialect"),
		Debug:       viper.GetBool("debug"),
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	return cfg, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(cfg *Config) error {
	viper.SetFs(AppFs)
	viper.Set("database_url", cfg.DatabaseURL)
	viper.Set("dialect", cfg.Dialect)
	viper.Set("debug", cfg.Debug)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(home, ".config", "singlefetch")
	if err := AppFs.MkdirAll(configPath, 0755); err != nil {
		return err
	}

	return viper.WriteConfigAs(filepath.Join(configPath, ".singlefetch.yaml"))
}
