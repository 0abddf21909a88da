package config

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries process-level settings. Values resolve in order:
// flags (handled by the CLI), SPECFLOW_* environment variables, an
// optional specflow.yaml in the working directory, then defaults.
type Config struct {
	DBPath   string `mapstructure:"db_path"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from the environment and the optional config
// file. A missing .env or specflow.yaml is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("db_path", filepath.Join(".specflow", "specflow.db"))
	v.SetDefault("http_addr", ":8337")
	v.SetDefault("log_level", "INFO")

	v.SetEnvPrefix("SPECFLOW")
	v.AutomaticEnv()

	v.SetConfigName("specflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
