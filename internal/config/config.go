package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"esphome-humidifier-bridge/internal/adapters/output/mqtt"
	"esphome-humidifier-bridge/internal/domain/model"
)

const (
	DefaultPath            = "/app/bridge.yaml"
	DefaultEntriesPath     = "/app/config.json"
	DefaultStatePath       = "/app/restore_state.json"
	DefaultHTTPPort        = 80
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBaseTopic       = "esphome_humidifier"
	DefaultMQTTTimeout     = 10 * time.Second
)

type Config struct {
	LogLevel      string                   `yaml:"log_level"`
	HomeAssistant HomeAssistantConfig      `yaml:"home_assistant"`
	MQTT          MQTTConfig               `yaml:"mqtt"`
	HTTP          HTTPConfig               `yaml:"http"`
	Storage       StorageConfig            `yaml:"storage"`
	Humidifiers   []*model.ConverterConfig `yaml:"humidifiers"`
}

type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type MQTTConfig struct {
	mqtt.BrokerConfig `yaml:",inline"`
	DiscoveryPrefix   string        `yaml:"discovery_prefix"`
	BaseTopic         string        `yaml:"base_topic"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Options returns the publisher topic layout.
func (c MQTTConfig) Options() mqtt.Options {
	return mqtt.Options{
		DiscoveryPrefix: c.DiscoveryPrefix,
		BaseTopic:       c.BaseTopic,
		QoS:             1,
		Timeout:         c.Timeout,
	}
}

type HTTPConfig struct {
	Port int `yaml:"port"`
	// AdvertiseIP is announced over SSDP; detected when empty.
	AdvertiseIP string `yaml:"advertise_ip"`
	SSDP        *bool  `yaml:"ssdp"`
}

func (c HTTPConfig) SSDPEnabled() bool {
	return c.SSDP == nil || *c.SSDP
}

type StorageConfig struct {
	EntriesPath string `yaml:"entries_path"`
	StatePath   string `yaml:"state_path"`
}

// Load reads the YAML file at path, expands ${VAR} references, applies
// environment overrides and defaults, then validates. A missing file
// yields a configuration built from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv keeps the environment variables the container image documents.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HASS_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("HASS_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfg.Storage.EntriesPath = v
	}
	if v := os.Getenv("LOCAL_IP"); v != "" {
		cfg.HTTP.AdvertiseIP = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = DefaultHTTPPort
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = DefaultBaseTopic
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = DefaultMQTTTimeout
	}
	if cfg.Storage.EntriesPath == "" {
		cfg.Storage.EntriesPath = DefaultEntriesPath
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = DefaultStatePath
	}
}

// Validate enforces what the bridge needs to start.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if cfg.MQTT.URL == "" {
		return fmt.Errorf("mqtt.url is required")
	}
	if strings.ContainsAny(cfg.MQTT.BaseTopic, "+#") || strings.ContainsAny(cfg.MQTT.DiscoveryPrefix, "+#") {
		return fmt.Errorf("mqtt topics must not contain wildcards")
	}
	if (cfg.HomeAssistant.URL == "") != (cfg.HomeAssistant.Token == "") {
		return fmt.Errorf("home_assistant.url and home_assistant.token must be set together")
	}

	seen := make(map[string]bool)
	for i, h := range cfg.Humidifiers {
		if h == nil {
			return fmt.Errorf("humidifiers[%d] is empty", i)
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("humidifiers[%d]: %w", i, err)
		}
		if seen[h.ClimateEntity] {
			return fmt.Errorf("humidifiers[%d]: %w: %s", i, model.ErrDuplicateClimate, h.ClimateEntity)
		}
		seen[h.ClimateEntity] = true
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}
