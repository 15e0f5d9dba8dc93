package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissing is wrapped by validation errors for required settings.
var ErrMissing = errors.New("missing required setting")

const envPrefix = "STARKCRON"

// legacyEnv maps keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"contract": "STARKLENS_SWAPERC20_CONTRACT",
	"api-key":  "VOYAGER_SECRET",
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Contract     string
	APIKey       string
	FeedURL      string
	ForwardURL   string
	ForwardFile  string
	Interval     time.Duration
	HTTPTimeout  time.Duration
	DBDriver     string
	DBPath       string
	PGDSN        string
	StateFile    string
	StateEnabled bool
	MetricsAddr  string
	LogLevel     string
	LogFormat    string
}

// Load merges the env file, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("feed-url", "https://sepolia-api.voyager.online/beta/events")
	v.SetDefault("forward-url", "https://starklens.vercel.app/api/indexer")
	v.SetDefault("interval", 20*time.Second)
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("db-driver", "sqlite")
	v.SetDefault("db-path", "starkcron_voyager.db")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("state-enabled", true)
	v.SetDefault("env-file", ".env")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := LoadEnvFile(v.GetString("env-file")); err != nil {
		return Config{}, err
	}

	for key, name := range legacyEnv {
		if err := v.BindEnv(key, envName(key), name); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Contract:     strings.TrimSpace(v.GetString("contract")),
		APIKey:       strings.TrimSpace(v.GetString("api-key")),
		FeedURL:      v.GetString("feed-url"),
		ForwardURL:   v.GetString("forward-url"),
		ForwardFile:  v.GetString("forward-file"),
		Interval:     v.GetDuration("interval"),
		HTTPTimeout:  v.GetDuration("http-timeout"),
		DBDriver:     strings.ToLower(v.GetString("db-driver")),
		DBPath:       v.GetString("db-path"),
		PGDSN:        v.GetString("pg-dsn"),
		StateFile:    v.GetString("state-file"),
		StateEnabled: v.GetBool("state-enabled"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
	}

	return cfg, nil
}

// Validate checks the settings needed to poll the feed.
func (c Config) Validate() error {
	if c.Contract == "" {
		return fmt.Errorf("%w: contract (%s_CONTRACT or %s)", ErrMissing, envPrefix, legacyEnv["contract"])
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key (%s_API_KEY or %s)", ErrMissing, envPrefix, legacyEnv["api-key"])
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return c.ValidateStore()
}

// ValidateStore checks the storage settings.
func (c Config) ValidateStore() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("%w: db path", ErrMissing)
		}
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("%w: pg dsn", ErrMissing)
		}
	default:
		return fmt.Errorf("unsupported db driver: %s", c.DBDriver)
	}
	return nil
}

// LoadEnvFile exports KEY=VALUE entries from a dotenv file into the process
// environment. Variables that are already set win. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
