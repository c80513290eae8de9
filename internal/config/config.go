// Package config provides configuration management for the go-aims application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override, e.g. AIMS_MQTT_HOST.
const EnvPrefix = "AIMS"

// Config holds all application configuration.
type Config struct {
	// General settings
	LogLevel string `mapstructure:"log_level"`

	// Serial link to the inverter
	Serial struct {
		Port        string        `mapstructure:"port"`
		BaudRate    int           `mapstructure:"baud_rate"`
		DataBits    int           `mapstructure:"data_bits"`
		Parity      string        `mapstructure:"parity"`
		StopBits    int           `mapstructure:"stop_bits"`
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
	} `mapstructure:"serial"`

	// MQTT settings
	MQTT struct {
		Enabled        bool          `mapstructure:"enabled"`
		Host           string        `mapstructure:"host"`
		Port           int           `mapstructure:"port"`
		Username       string        `mapstructure:"username"`
		Password       string        `mapstructure:"password"`
		ClientID       string        `mapstructure:"client_id"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		PublishTimeout time.Duration `mapstructure:"publish_timeout"`
		BaseTopic      string        `mapstructure:"base_topic"`
		ModelTopic     string        `mapstructure:"model_topic"`
	} `mapstructure:"mqtt"`

	// Home Assistant discovery settings
	HomeAssistant struct {
		DiscoveryPrefix      string `mapstructure:"discovery_prefix"`
		ExpireAfter          int    `mapstructure:"expire_after"`
		DeviceJSON           string `mapstructure:"device_json"`
		DeviceName           string `mapstructure:"device_name"`
		DeviceManufacturer   string `mapstructure:"device_manufacturer"`
		DeviceModel          string `mapstructure:"device_model"`
		ListenToBirthMessage bool   `mapstructure:"listen_to_birth_message"`
		RediscoveryInterval  int    `mapstructure:"rediscovery_interval_hours"`
	} `mapstructure:"homeassistant"`

	// Polling; a zero interval runs once and exits
	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"poll"`

	// HTTP API settings, daemon mode only
	API struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"api"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{
		LogLevel: "info",
	}

	// Default serial settings, 2400 8N1
	cfg.Serial.Port = "/dev/ttyAMA0"
	cfg.Serial.BaudRate = 2400
	cfg.Serial.DataBits = 8
	cfg.Serial.Parity = "N"
	cfg.Serial.StopBits = 1
	cfg.Serial.ReadTimeout = time.Second

	// Default MQTT settings
	cfg.MQTT.Enabled = true
	cfg.MQTT.Host = "localhost"
	cfg.MQTT.Port = 1883
	cfg.MQTT.ClientID = "go-aims"
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.PublishTimeout = 5 * time.Second
	cfg.MQTT.BaseTopic = "inverter"
	cfg.MQTT.ModelTopic = "aims"

	// Default Home Assistant settings
	cfg.HomeAssistant.DiscoveryPrefix = "homeassistant"
	cfg.HomeAssistant.ExpireAfter = 120
	cfg.HomeAssistant.DeviceName = "AIMS Inverter"
	cfg.HomeAssistant.DeviceManufacturer = "AIMS Power"
	cfg.HomeAssistant.ListenToBirthMessage = true
	cfg.HomeAssistant.RediscoveryInterval = 24

	// Default API settings
	cfg.API.Enabled = false
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 8080

	return cfg
}

// Load reads the configuration from a file and environment variables.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Set up Viper
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Override with specific config file if provided
	if configPath != "" {
		// An explicitly named file must exist
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		v.SetConfigFile(configPath)
	}

	// Register every key so environment overrides apply to values absent from the file
	setDefaults(v, cfg)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			log.Info().Msg("No configuration file found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("serial.port", cfg.Serial.Port)
	v.SetDefault("serial.baud_rate", cfg.Serial.BaudRate)
	v.SetDefault("serial.data_bits", cfg.Serial.DataBits)
	v.SetDefault("serial.parity", cfg.Serial.Parity)
	v.SetDefault("serial.stop_bits", cfg.Serial.StopBits)
	v.SetDefault("serial.read_timeout", cfg.Serial.ReadTimeout)

	v.SetDefault("mqtt.enabled", cfg.MQTT.Enabled)
	v.SetDefault("mqtt.host", cfg.MQTT.Host)
	v.SetDefault("mqtt.port", cfg.MQTT.Port)
	v.SetDefault("mqtt.username", cfg.MQTT.Username)
	v.SetDefault("mqtt.password", cfg.MQTT.Password)
	v.SetDefault("mqtt.client_id", cfg.MQTT.ClientID)
	v.SetDefault("mqtt.connect_timeout", cfg.MQTT.ConnectTimeout)
	v.SetDefault("mqtt.publish_timeout", cfg.MQTT.PublishTimeout)
	v.SetDefault("mqtt.base_topic", cfg.MQTT.BaseTopic)
	v.SetDefault("mqtt.model_topic", cfg.MQTT.ModelTopic)

	v.SetDefault("homeassistant.discovery_prefix", cfg.HomeAssistant.DiscoveryPrefix)
	v.SetDefault("homeassistant.expire_after", cfg.HomeAssistant.ExpireAfter)
	v.SetDefault("homeassistant.device_json", cfg.HomeAssistant.DeviceJSON)
	v.SetDefault("homeassistant.device_name", cfg.HomeAssistant.DeviceName)
	v.SetDefault("homeassistant.device_manufacturer", cfg.HomeAssistant.DeviceManufacturer)
	v.SetDefault("homeassistant.device_model", cfg.HomeAssistant.DeviceModel)
	v.SetDefault("homeassistant.listen_to_birth_message", cfg.HomeAssistant.ListenToBirthMessage)
	v.SetDefault("homeassistant.rediscovery_interval_hours", cfg.HomeAssistant.RediscoveryInterval)

	v.SetDefault("poll.interval", cfg.Poll.Interval)

	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.port", cfg.API.Port)
}

// Validate checks the configuration for values the bridge cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Serial.Port) == "" {
		errs = append(errs, errors.New("serial.port must not be empty"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, fmt.Errorf("serial.data_bits must be between 5 and 8, got %d", c.Serial.DataBits))
	}
	switch strings.ToUpper(c.Serial.Parity) {
	case "N", "E", "O":
	default:
		errs = append(errs, fmt.Errorf("serial.parity must be N, E or O, got %q", c.Serial.Parity))
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, fmt.Errorf("serial.stop_bits must be 1 or 2, got %d", c.Serial.StopBits))
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("serial.read_timeout must be positive, got %s", c.Serial.ReadTimeout))
	}

	if strings.TrimSpace(c.MQTT.BaseTopic) == "" {
		errs = append(errs, errors.New("mqtt.base_topic must not be empty"))
	}
	if strings.TrimSpace(c.MQTT.ModelTopic) == "" {
		errs = append(errs, errors.New("mqtt.model_topic must not be empty"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, errors.New("mqtt.host must not be empty"))
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			errs = append(errs, fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port))
		}
		if c.MQTT.ConnectTimeout <= 0 {
			errs = append(errs, fmt.Errorf("mqtt.connect_timeout must be positive, got %s", c.MQTT.ConnectTimeout))
		}
		if c.MQTT.PublishTimeout <= 0 {
			errs = append(errs, fmt.Errorf("mqtt.publish_timeout must be positive, got %s", c.MQTT.PublishTimeout))
		}
	}

	if strings.TrimSpace(c.HomeAssistant.DiscoveryPrefix) == "" {
		errs = append(errs, errors.New("homeassistant.discovery_prefix must not be empty"))
	}
	if c.HomeAssistant.ExpireAfter < 0 {
		errs = append(errs, fmt.Errorf("homeassistant.expire_after must not be negative, got %d", c.HomeAssistant.ExpireAfter))
	}
	if c.HomeAssistant.RediscoveryInterval < 0 {
		errs = append(errs, fmt.Errorf("homeassistant.rediscovery_interval_hours must not be negative, got %d", c.HomeAssistant.RediscoveryInterval))
	}

	if c.Poll.Interval < 0 {
		errs = append(errs, fmt.Errorf("poll.interval must not be negative, got %s", c.Poll.Interval))
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// RediscoveryInterval returns the periodic rediscovery interval, zero when disabled.
func (c *Config) RediscoveryInterval() time.Duration {
	return time.Duration(c.HomeAssistant.RediscoveryInterval) * time.Hour
}

// Daemon reports whether the bridge polls periodically instead of running once.
func (c *Config) Daemon() bool {
	return c.Poll.Interval > 0
}

// Print displays the current configuration.
func (c *Config) Print() {
	logger := log.With().Str("component", "config").Logger()
	logger.Info().Msg("go-aims Configuration:")
	logger.Info().Msg("-----------------------------")
	logger.Info().Str("log_level", c.LogLevel).Msg("Log Level")

	logger.Info().
		Str("port", c.Serial.Port).
		Int("baud_rate", c.Serial.BaudRate).
		Str("framing", fmt.Sprintf("%d%s%d", c.Serial.DataBits, strings.ToUpper(c.Serial.Parity), c.Serial.StopBits)).
		Dur("read_timeout", c.Serial.ReadTimeout).
		Msg("Serial")

	logger.Info().Bool("enabled", c.MQTT.Enabled).Msg("MQTT Enabled")
	if c.MQTT.Enabled {
		logger.Info().
			Str("host", c.MQTT.Host).
			Int("port", c.MQTT.Port).
			Str("base_topic", c.MQTT.BaseTopic).
			Str("model_topic", c.MQTT.ModelTopic).
			Bool("authenticated", c.MQTT.Username != "").
			Msg("MQTT Configuration")
	}

	logger.Info().
		Str("discovery_prefix", c.HomeAssistant.DiscoveryPrefix).
		Int("expire_after", c.HomeAssistant.ExpireAfter).
		Bool("custom_device_json", c.HomeAssistant.DeviceJSON != "").
		Bool("listen_to_birth_message", c.HomeAssistant.ListenToBirthMessage).
		Int("rediscovery_interval_hours", c.HomeAssistant.RediscoveryInterval).
		Msg("Home Assistant Discovery")

	if c.Daemon() {
		logger.Info().Dur("interval", c.Poll.Interval).Msg("Polling")
		logger.Info().Bool("enabled", c.API.Enabled).Msg("API Enabled")
		if c.API.Enabled {
			logger.Info().
				Str("host", c.API.Host).
				Int("port", c.API.Port).
				Msg("API Server")
		}
	} else {
		logger.Info().Msg("Single run")
	}

	logger.Info().Msg("-----------------------------")
}
