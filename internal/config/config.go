package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/tariff"
)

// Config carries everything the CLI and daemon need to run.
type Config struct {
	Horizon   int     `mapstructure:"horizon"`
	MaxLoadKW float64 `mapstructure:"max_load_kw"`
	DBPath    string  `mapstructure:"db_path"`
	Log       Log     `mapstructure:"log"`
	HTTP      HTTP    `mapstructure:"http"`
	MQTT      MQTT    `mapstructure:"mqtt"`
	Octopus   Octopus `mapstructure:"octopus"`
}

// Log controls the process logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// HTTP configures the daemon's API listener.
type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// MQTT configures the optional schedule publisher.
type MQTT struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

// Octopus selects the Agile region used by tariff fetches.
type Octopus struct {
	Region string `mapstructure:"region"`
}

// Dir returns the default config and data directory, $HOME/.loadplan.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".loadplan"), nil
}

// Load reads the config file (the explicit path if given, otherwise
// config.yaml inside Dir), applies LOADPLAN_* environment overrides,
// fills defaults and validates. A missing default file is fine; a missing
// explicit file is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return Config{}, err
		}
		os.MkdirAll(dir, 0755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LOADPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DBPath == "" {
		dir, err := Dir()
		if err != nil {
			return Config{}, err
		}
		cfg.DBPath = filepath.Join(dir, "loadplan.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("horizon", tariff.DefaultHorizon)
	v.SetDefault("max_load_kw", 5.0)
	v.SetDefault("db_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "loadplan")
	v.SetDefault("mqtt.topic_prefix", "loadplan")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("octopus.region", "C")
}

// Validate rejects configurations the daemon could not start with.
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", c.Horizon)
	}
	if c.MaxLoadKW <= 0 {
		return fmt.Errorf("%w: %v kW", engine.ErrInvalidMaxLoad, c.MaxLoadKW)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}
