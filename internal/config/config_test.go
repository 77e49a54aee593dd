package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esphome-humidifier-bridge/internal/domain/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_HA_TOKEN", "abc123")
	path := writeConfig(t, `
log_level: debug
home_assistant:
  url: http://ha:8123
  token: ${TEST_HA_TOKEN}
mqtt:
  url: tcp://mqtt:1883
  username: bridge
  timeout: 5s
http:
  port: 8080
  ssdp: false
humidifiers:
  - climate_entity: climate.basement
    name: Basement
    min_humidity: 35
    modes: [smart, clothes_drying]
    tank_level_entity: sensor.basement_tank
    hue:
      expose: true
      hue_id: "3"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.HomeAssistant.Token)
	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.URL)
	assert.Equal(t, "bridge", cfg.MQTT.Username)
	assert.Equal(t, 5*time.Second, cfg.MQTT.Timeout)
	assert.Equal(t, DefaultBaseTopic, cfg.MQTT.BaseTopic)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.HTTP.SSDPEnabled())
	assert.Equal(t, DefaultEntriesPath, cfg.Storage.EntriesPath)

	require.Len(t, cfg.Humidifiers, 1)
	h := cfg.Humidifiers[0]
	assert.Equal(t, "climate.basement", h.ClimateEntity)
	require.NotNil(t, h.MinHumidity)
	assert.Equal(t, 35, *h.MinHumidity)
	assert.Nil(t, h.MaxHumidity)
	assert.Equal(t, []string{"smart", "clothes_drying"}, h.Modes)
	assert.Equal(t, "sensor.basement_tank", h.Companion(model.CompanionTankLevel))
	assert.Equal(t, "3", h.Hue.HueID)

	level, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	opts := cfg.MQTT.Options()
	assert.Equal(t, "homeassistant", opts.DiscoveryPrefix)
	assert.Equal(t, byte(1), opts.QoS)
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("HASS_URL", "http://ha:8123")
	t.Setenv("HASS_TOKEN", "tok")
	t.Setenv("CONFIG_PATH", "/data/entries.json")
	t.Setenv("LOCAL_IP", "10.0.0.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.URL)
	assert.Equal(t, "http://ha:8123", cfg.HomeAssistant.URL)
	assert.Equal(t, "/data/entries.json", cfg.Storage.EntriesPath)
	assert.Equal(t, "10.0.0.5", cfg.HTTP.AdvertiseIP)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
	assert.True(t, cfg.HTTP.SSDPEnabled())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "mqtt:\n  url: tcp://m:1883\nbogus: 1\n",
		"missing mqtt":    "log_level: info\n",
		"bad level":       "log_level: loud\nmqtt:\n  url: tcp://m:1883\n",
		"wildcard topic":  "mqtt:\n  url: tcp://m:1883\n  base_topic: a/#\n",
		"token only":      "mqtt:\n  url: tcp://m:1883\nhome_assistant:\n  token: x\n",
		"not climate":     "mqtt:\n  url: tcp://m:1883\nhumidifiers:\n  - climate_entity: sensor.x\n",
		"duplicate":       "mqtt:\n  url: tcp://m:1883\nhumidifiers:\n  - climate_entity: climate.x\n  - climate_entity: climate.x\n",
		"bad port":        "mqtt:\n  url: tcp://m:1883\nhttp:\n  port: 70000\n",
		"min above max":   "mqtt:\n  url: tcp://m:1883\nhumidifiers:\n  - climate_entity: climate.x\n    min_humidity: 70\n    max_humidity: 40\n",
		"malformed yaml":  "mqtt: [\n",
		"wrong companion": "mqtt:\n  url: tcp://m:1883\nhumidifiers:\n  - climate_entity: climate.x\n    pump_entity: sensor.pump\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
