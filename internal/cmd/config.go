package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	openaiconstants "github.com/danilofalcao/ai-relay/internal/constants/openai"
	openrouterconstants "github.com/danilofalcao/ai-relay/internal/constants/openrouter"
	"github.com/danilofalcao/ai-relay/internal/relay"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort          = "3000"
	DefaultAllowedOrigin = "http://localhost:8000"
	// DefaultTimeout of zero leaves upstream calls without a deadline
	DefaultTimeout time.Duration = 0
	DefaultEnvFile       = ".env"
)

type BackendConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Apikey   string            `mapstructure:"api_key"`
	Models   map[string]string `mapstructure:"models"`
}

// Config is read once at startup. Credentials never come from the
// environment after this point.
type Config struct {
	Openai        BackendConfig `mapstructure:"openai"`
	Openrouter    BackendConfig `mapstructure:"openrouter"`
	Port          string        `mapstructure:"port"`
	Loglevel      string        `mapstructure:"log_level"`
	Timeout       time.Duration `mapstructure:"timeout"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
}

// Warnings lists configuration that lets the relay start but will make some
// requests fall back.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Openai.Apikey == "" {
		warnings = append(warnings, openaiconstants.APIKeyEnv+" is not set; requests for OpenAI models will fail")
	}
	if c.Openrouter.Apikey == "" {
		warnings = append(warnings, openrouterconstants.APIKeyEnv+" is not set; requests for "+
			strings.Join(c.mappedModels(), ", ")+" will fail")
	}
	return warnings
}

func (c *Config) mappedModels() []string {
	models := c.Openrouter.Models
	if len(models) == 0 {
		models = relay.DefaultModelMapping
	}
	return slices.Sorted(maps.Keys(models))
}

// LoadConfig resolves flags, the .env file, environment variables and an
// optional config file, in that order of precedence.
func LoadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("ai-relay", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "sets the config file location e.g. $HOME/relay-config.yaml")
	envFile := fs.String("env_file", DefaultEnvFile, "file of KEY=value lines loaded into the environment")
	fs.String("port", DefaultPort, "port to listen on")
	fs.String("log_level", "info", "one of trace, debug, info, warn, error")
	fs.String("allowed_origin", DefaultAllowedOrigin, "the only origin allowed to make cross-origin requests")
	fs.Duration("timeout", DefaultTimeout, "deadline for each upstream call, 0 for none")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil {
		if fs.Changed("env_file") || !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "error loading env file %s", *envFile)
		}
	}

	// Have to use custom key delimiter to allow for models with periods in the name
	v := viper.NewWithOptions(
		viper.KeyDelimiter("#"),
		viper.EnvKeyReplacer(strings.NewReplacer("#", "_")),
	)

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("allowed_origin", DefaultAllowedOrigin)
	v.SetDefault("openai#endpoint", openaiconstants.DefaultEndpoint)
	v.SetDefault("openrouter#endpoint", openrouterconstants.DefaultEndpoint)

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "error binding flags")
	}

	// Unmarshal only sees env vars for keys viper already knows about
	if err := v.BindEnv("openai#api_key", openaiconstants.APIKeyEnv); err != nil {
		return nil, errors.Wrap(err, "error binding env")
	}
	if err := v.BindEnv("openrouter#api_key", openrouterconstants.APIKeyEnv); err != nil {
		return nil, errors.Wrap(err, "error binding env")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("port must not be empty")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}

	return &cfg, nil
}
