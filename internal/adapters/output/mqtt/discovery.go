package mqtt

import (
	"regexp"
	"strings"

	"esphome-humidifier-bridge/internal/domain/model"
)

const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

var objectIDPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ObjectID turns an entity id into a topic-safe identifier.
func ObjectID(entityID string) string {
	return objectIDPattern.ReplaceAllString(strings.ReplaceAll(entityID, ".", "_"), "_")
}

type Availability struct {
	Topic string `json:"topic"`
}

type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// HumidifierDiscovery is the MQTT humidifier config payload.
type HumidifierDiscovery struct {
	Name                       string          `json:"name"`
	UniqueID                   string          `json:"unique_id"`
	ObjectID                   string          `json:"object_id,omitempty"`
	DeviceClass                string          `json:"device_class"`
	CommandTopic               string          `json:"command_topic"`
	StateTopic                 string          `json:"state_topic"`
	PayloadOn                  string          `json:"payload_on"`
	PayloadOff                 string          `json:"payload_off"`
	TargetHumidityCommandTopic string          `json:"target_humidity_command_topic"`
	TargetHumidityStateTopic   string          `json:"target_humidity_state_topic"`
	CurrentHumidityTopic       string          `json:"current_humidity_topic"`
	ModeCommandTopic           string          `json:"mode_command_topic,omitempty"`
	ModeStateTopic             string          `json:"mode_state_topic,omitempty"`
	Modes                      []string        `json:"modes,omitempty"`
	MinHumidity                int             `json:"min_humidity"`
	MaxHumidity                int             `json:"max_humidity"`
	JSONAttributesTopic        string          `json:"json_attributes_topic"`
	Availability               []Availability  `json:"availability"`
	AvailabilityMode           string          `json:"availability_mode"`
	Optimistic                 bool            `json:"optimistic"`
	Device                     DiscoveryDevice `json:"device"`
}

// SelectDiscovery is the MQTT select config payload.
type SelectDiscovery struct {
	Name             string          `json:"name"`
	UniqueID         string          `json:"unique_id"`
	ObjectID         string          `json:"object_id,omitempty"`
	Icon             string          `json:"icon"`
	CommandTopic     string          `json:"command_topic"`
	StateTopic       string          `json:"state_topic"`
	Options          []string        `json:"options"`
	Availability     []Availability  `json:"availability"`
	AvailabilityMode string          `json:"availability_mode"`
	Optimistic       bool            `json:"optimistic"`
	Device           DiscoveryDevice `json:"device"`
}

// Topics lays out every topic used for one converter.
type Topics struct {
	Object string

	HumidifierConfig    string
	State               string
	Command             string
	TargetHumidity      string
	TargetHumiditySet   string
	CurrentHumidity     string
	Mode                string
	ModeSet             string
	Attributes          string
	Availability        string
	FanModeConfig       string
	FanMode             string
	FanModeSet          string
	FanModeAvailability string
}

func NewTopics(discoveryPrefix, baseTopic, climateEntity string) Topics {
	obj := ObjectID(climateEntity)
	root := baseTopic + "/" + obj
	return Topics{
		Object:              obj,
		HumidifierConfig:    discoveryPrefix + "/humidifier/" + obj + "/config",
		State:               root + "/state",
		Command:             root + "/set",
		TargetHumidity:      root + "/target_humidity",
		TargetHumiditySet:   root + "/target_humidity/set",
		CurrentHumidity:     root + "/current_humidity",
		Mode:                root + "/mode",
		ModeSet:             root + "/mode/set",
		Attributes:          root + "/attributes",
		Availability:        root + "/availability",
		FanModeConfig:       discoveryPrefix + "/select/" + obj + "_fan_mode/config",
		FanMode:             root + "/fan_mode",
		FanModeSet:          root + "/fan_mode/set",
		FanModeAvailability: root + "/fan_mode/availability",
	}
}

func device(cfg *model.ConverterConfig) DiscoveryDevice {
	return DiscoveryDevice{
		Identifiers:  []string{cfg.ID()},
		Name:         cfg.DisplayName(),
		Manufacturer: "ESPHome",
		Model:        "midea_dehum",
	}
}

// BuildHumidifierDiscovery renders the humidifier config. Modes are only
// advertised when the humidifier supports them.
func BuildHumidifierDiscovery(cfg *model.ConverterConfig, h model.HumidifierState, t Topics, bridgeStatusTopic string) HumidifierDiscovery {
	d := HumidifierDiscovery{
		Name:                       h.Name,
		UniqueID:                   h.ID,
		ObjectID:                   t.Object,
		DeviceClass:                "dehumidifier",
		CommandTopic:               t.Command,
		StateTopic:                 t.State,
		PayloadOn:                  PayloadOn,
		PayloadOff:                 PayloadOff,
		TargetHumidityCommandTopic: t.TargetHumiditySet,
		TargetHumidityStateTopic:   t.TargetHumidity,
		CurrentHumidityTopic:       t.CurrentHumidity,
		MinHumidity:                h.MinHumidity,
		MaxHumidity:                h.MaxHumidity,
		JSONAttributesTopic:        t.Attributes,
		Availability:               []Availability{{Topic: bridgeStatusTopic}, {Topic: t.Availability}},
		AvailabilityMode:           "all",
		Device:                     device(cfg),
	}
	if h.SupportsModes() {
		d.ModeCommandTopic = t.ModeSet
		d.ModeStateTopic = t.Mode
		d.Modes = append([]string(nil), h.AvailableModes...)
	}
	return d
}

func BuildSelectDiscovery(cfg *model.ConverterConfig, f model.FanModeState, t Topics, bridgeStatusTopic string) SelectDiscovery {
	return SelectDiscovery{
		Name:             f.Name,
		UniqueID:         f.ID,
		ObjectID:         t.Object + "_fan_mode",
		Icon:             "mdi:fan",
		CommandTopic:     t.FanModeSet,
		StateTopic:       t.FanMode,
		Options:          append([]string(nil), f.Options...),
		Availability:     []Availability{{Topic: bridgeStatusTopic}, {Topic: t.FanModeAvailability}},
		AvailabilityMode: "all",
		Device:           device(cfg),
	}
}
