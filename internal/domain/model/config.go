package model

import "strings"

const (
	DefaultName        = "HKI Dehumidifier"
	DefaultMinHumidity = 30
	DefaultMaxHumidity = 80
	DefaultOnHVACMode  = "dry"

	UniqueIDPrefix = "hki_esphome_humidifier"
)

type CompanionKind string

const (
	CompanionSensor       CompanionKind = "sensor"
	CompanionBinarySensor CompanionKind = "binary_sensor"
	CompanionSwitch       CompanionKind = "switch"
)

// CompanionKey is the configuration key of an optional companion entity.
type CompanionKey string

const (
	CompanionCurrentHumidity CompanionKey = "current_humidity_entity"
	CompanionTankLevel       CompanionKey = "tank_level_entity"
	CompanionPM25            CompanionKey = "pm25_entity"
	CompanionError           CompanionKey = "error_entity"

	CompanionBucketFull  CompanionKey = "bucket_full_entity"
	CompanionCleanFilter CompanionKey = "clean_filter_entity"
	CompanionDefrost     CompanionKey = "defrost_entity"

	CompanionIonizer CompanionKey = "ionizer_entity"
	CompanionPump    CompanionKey = "pump_entity"
	CompanionSleep   CompanionKey = "sleep_entity"
	CompanionBeep    CompanionKey = "beep_entity"
)

// CompanionSpec describes how a companion entity is folded into the humidifier.
type CompanionSpec struct {
	Key       CompanionKey
	Kind      CompanionKind
	Attribute string // extra state attribute name
}

// CompanionSpecs lists every supported companion in a stable order.
var CompanionSpecs = []CompanionSpec{
	{Key: CompanionCurrentHumidity, Kind: CompanionSensor, Attribute: "current_humidity"},
	{Key: CompanionTankLevel, Kind: CompanionSensor, Attribute: "tank_level"},
	{Key: CompanionPM25, Kind: CompanionSensor, Attribute: "pm25"},
	{Key: CompanionError, Kind: CompanionSensor, Attribute: "error_code"},
	{Key: CompanionBucketFull, Kind: CompanionBinarySensor, Attribute: "bucket_full"},
	{Key: CompanionCleanFilter, Kind: CompanionBinarySensor, Attribute: "clean_filter"},
	{Key: CompanionDefrost, Kind: CompanionBinarySensor, Attribute: "defrost"},
	{Key: CompanionIonizer, Kind: CompanionSwitch, Attribute: "ionizer"},
	{Key: CompanionPump, Kind: CompanionSwitch, Attribute: "pump"},
	{Key: CompanionSleep, Kind: CompanionSwitch, Attribute: "sleep_mode"},
	{Key: CompanionBeep, Kind: CompanionSwitch, Attribute: "beep"},
}

// HueExposure controls whether a converter is also offered as an emulated Hue light.
type HueExposure struct {
	Expose bool   `json:"expose" yaml:"expose"`
	HueID  string `json:"hue_id,omitempty" yaml:"hue_id,omitempty"`

	// Conversion formulas (variable: x) between Hue brightness and target humidity
	ToHueFormula string `json:"to_hue_formula,omitempty" yaml:"to_hue_formula,omitempty"`
	ToHAFormula  string `json:"to_ha_formula,omitempty" yaml:"to_ha_formula,omitempty"`
}

// ConverterConfig is one climate entity turned into a humidifier.
type ConverterConfig struct {
	ClimateEntity string   `json:"climate_entity" yaml:"climate_entity"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	OnHVACMode    string   `json:"on_hvac_mode,omitempty" yaml:"on_hvac_mode,omitempty"`
	MinHumidity   *int     `json:"min_humidity,omitempty" yaml:"min_humidity,omitempty"`
	MaxHumidity   *int     `json:"max_humidity,omitempty" yaml:"max_humidity,omitempty"`
	Modes         []string `json:"modes,omitempty" yaml:"modes,omitempty"`

	CurrentHumidityEntity string `json:"current_humidity_entity,omitempty" yaml:"current_humidity_entity,omitempty"`
	TankLevelEntity       string `json:"tank_level_entity,omitempty" yaml:"tank_level_entity,omitempty"`
	PM25Entity            string `json:"pm25_entity,omitempty" yaml:"pm25_entity,omitempty"`
	ErrorEntity           string `json:"error_entity,omitempty" yaml:"error_entity,omitempty"`

	BucketFullEntity  string `json:"bucket_full_entity,omitempty" yaml:"bucket_full_entity,omitempty"`
	CleanFilterEntity string `json:"clean_filter_entity,omitempty" yaml:"clean_filter_entity,omitempty"`
	DefrostEntity     string `json:"defrost_entity,omitempty" yaml:"defrost_entity,omitempty"`

	IonizerEntity string `json:"ionizer_entity,omitempty" yaml:"ionizer_entity,omitempty"`
	PumpEntity    string `json:"pump_entity,omitempty" yaml:"pump_entity,omitempty"`
	SleepEntity   string `json:"sleep_entity,omitempty" yaml:"sleep_entity,omitempty"`
	BeepEntity    string `json:"beep_entity,omitempty" yaml:"beep_entity,omitempty"`

	Hue *HueExposure `json:"hue,omitempty" yaml:"hue,omitempty"`
}

// ID is the stable identifier of the converter; one converter per climate entity.
func (c *ConverterConfig) ID() string {
	return UniqueIDPrefix + "_" + c.ClimateEntity
}

// FanModeID is the unique id of the companion fan speed select.
func (c *ConverterConfig) FanModeID() string {
	return c.ID() + "_fan_mode"
}

func (c *ConverterConfig) DisplayName() string {
	if c.Name == "" {
		return DefaultName
	}
	return c.Name
}

func (c *ConverterConfig) FanModeName() string {
	return c.DisplayName() + " Fan Speed"
}

func (c *ConverterConfig) OnMode() string {
	if c.OnHVACMode == "" {
		return DefaultOnHVACMode
	}
	return c.OnHVACMode
}

// Companion returns the entity id configured for key, or "".
func (c *ConverterConfig) Companion(key CompanionKey) string {
	switch key {
	case CompanionCurrentHumidity:
		return c.CurrentHumidityEntity
	case CompanionTankLevel:
		return c.TankLevelEntity
	case CompanionPM25:
		return c.PM25Entity
	case CompanionError:
		return c.ErrorEntity
	case CompanionBucketFull:
		return c.BucketFullEntity
	case CompanionCleanFilter:
		return c.CleanFilterEntity
	case CompanionDefrost:
		return c.DefrostEntity
	case CompanionIonizer:
		return c.IonizerEntity
	case CompanionPump:
		return c.PumpEntity
	case CompanionSleep:
		return c.SleepEntity
	case CompanionBeep:
		return c.BeepEntity
	}
	return ""
}

// SetCompanion assigns entityID to key. Unknown keys are ignored.
func (c *ConverterConfig) SetCompanion(key CompanionKey, entityID string) {
	entityID = strings.TrimSpace(entityID)
	switch key {
	case CompanionCurrentHumidity:
		c.CurrentHumidityEntity = entityID
	case CompanionTankLevel:
		c.TankLevelEntity = entityID
	case CompanionPM25:
		c.PM25Entity = entityID
	case CompanionError:
		c.ErrorEntity = entityID
	case CompanionBucketFull:
		c.BucketFullEntity = entityID
	case CompanionCleanFilter:
		c.CleanFilterEntity = entityID
	case CompanionDefrost:
		c.DefrostEntity = entityID
	case CompanionIonizer:
		c.IonizerEntity = entityID
	case CompanionPump:
		c.PumpEntity = entityID
	case CompanionSleep:
		c.SleepEntity = entityID
	case CompanionBeep:
		c.BeepEntity = entityID
	}
}

// TrackedEntities returns the climate entity followed by every configured companion.
func (c *ConverterConfig) TrackedEntities() []string {
	ids := []string{c.ClimateEntity}
	for _, comp := range CompanionSpecs {
		if eid := c.Companion(comp.Key); eid != "" {
			ids = append(ids, eid)
		}
	}
	return ids
}

// Clone returns a deep copy so callers may edit without touching running state.
func (c *ConverterConfig) Clone() *ConverterConfig {
	out := *c
	if c.MinHumidity != nil {
		v := *c.MinHumidity
		out.MinHumidity = &v
	}
	if c.MaxHumidity != nil {
		v := *c.MaxHumidity
		out.MaxHumidity = &v
	}
	if c.Modes != nil {
		out.Modes = append([]string(nil), c.Modes...)
	}
	if c.Hue != nil {
		h := *c.Hue
		out.Hue = &h
	}
	return &out
}

// Config is the persisted state of the bridge: the Home Assistant connection
// and the converters created through the admin API.
type Config struct {
	HassURL    string             `json:"hass_url"`
	HassToken  string             `json:"hass_token"`
	Converters []*ConverterConfig `json:"converters"` // Ordered slice
}
