package translator

import (
	"fmt"
	"log/slog"

	"esphome-humidifier-bridge/internal/domain/model"
)

// HumidifierTranslator maps a climate entity exposed by the midea_dehum
// firmware onto humidifier semantics:
//
//	target_humidity  <- climate.humidity
//	current_humidity <- climate.current_humidity (or current_humidity_entity)
//	current_temp     <- climate.current_temperature (extra attribute)
//	humidity range   <- climate.min_humidity / max_humidity
//	mode             <- climate.preset_mode
//	is_on            <- climate.state != "off"
type HumidifierTranslator struct {
	cfg    *model.ConverterConfig
	logger *slog.Logger
}

func NewHumidifierTranslator(cfg *model.ConverterConfig, logger *slog.Logger) *HumidifierTranslator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HumidifierTranslator{cfg: cfg, logger: logger}
}

// NewState builds the initial, unavailable humidifier for the config.
func (t *HumidifierTranslator) NewState() *model.HumidifierState {
	h := &model.HumidifierState{
		ID:                  t.cfg.ID(),
		Name:                t.cfg.DisplayName(),
		MinHumidity:         model.DefaultMinHumidity,
		MaxHumidity:         model.DefaultMaxHumidity,
		Companions:          make(map[string]interface{}),
		SourceClimateEntity: t.cfg.ClimateEntity,
		OnHVACMode:          t.cfg.OnMode(),
	}
	// A configured 0 counts as "not set", like the unset case.
	if t.cfg.MinHumidity != nil && *t.cfg.MinHumidity != 0 {
		h.MinHumidity = *t.cfg.MinHumidity
	}
	if t.cfg.MaxHumidity != nil && *t.cfg.MaxHumidity != 0 {
		h.MaxHumidity = *t.cfg.MaxHumidity
	}
	if len(t.cfg.Modes) > 0 {
		h.AvailableModes = append([]string(nil), t.cfg.Modes...)
	}
	return h
}

// SyncClimate folds the live climate state into h.
func (t *HumidifierTranslator) SyncClimate(h *model.HumidifierState, climate *model.EntityState) {
	if !climate.Valid() {
		h.Available = false
		return
	}
	h.Available = true
	h.IsOn = climate.State != model.StateOff

	if t.cfg.MinHumidity == nil {
		if v, ok := model.SafeInt(climate.Attr("min_humidity")); ok {
			h.MinHumidity = v
		}
	}
	if t.cfg.MaxHumidity == nil {
		if v, ok := model.SafeInt(climate.Attr("max_humidity")); ok {
			h.MaxHumidity = v
		}
	}

	// The setpoint lives in `humidity`; `temperature` is null on dehumidifiers.
	if v, ok := model.SafeInt(climate.Attr("humidity")); ok {
		h.TargetHumidity = &v
	}

	if t.cfg.CurrentHumidityEntity == "" {
		if v, ok := model.SafeFloat(climate.Attr("current_humidity")); ok {
			h.CurrentHumidity = &v
		}
	}

	if v, ok := model.SafeFloat(climate.Attr("current_temperature")); ok {
		h.CurrentTemperature = &v
	} else {
		h.CurrentTemperature = nil
	}

	presets := climate.StringsAttr("preset_modes")
	if len(t.cfg.Modes) == 0 && len(presets) > 0 {
		h.AvailableModes = presets
	}
	if preset := climate.StringAttr("preset_mode"); h.SupportsModes() && h.HasMode(preset) {
		h.Mode = preset
	}
}

// SyncCompanion folds a companion entity state into h. It reports whether
// entityID belongs to one of the configured companions.
func (t *HumidifierTranslator) SyncCompanion(h *model.HumidifierState, entityID string, state *model.EntityState) bool {
	for _, comp := range model.CompanionSpecs {
		if t.cfg.Companion(comp.Key) != entityID {
			continue
		}
		if !state.Valid() {
			return true
		}
		switch {
		case comp.Key == model.CompanionCurrentHumidity:
			if v, ok := model.SafeFloat(state.State); ok {
				h.CurrentHumidity = &v
			} else {
				t.logger.Warn("could not parse humidity sensor",
					"climate_entity", t.cfg.ClimateEntity, "entity_id", entityID, "state", state.State)
			}
		case comp.Kind == model.CompanionBinarySensor, comp.Kind == model.CompanionSwitch:
			h.Companions[comp.Attribute] = state.State == model.StateOn
		case comp.Kind == model.CompanionSensor:
			if v, ok := model.SafeFloat(state.State); ok {
				h.Companions[comp.Attribute] = v
			} else {
				h.Companions[comp.Attribute] = state.State
			}
		}
		return true
	}
	return false
}

func (t *HumidifierTranslator) TurnOn() model.ServiceCall {
	return t.climateCall("set_hvac_mode", "hvac_mode", t.cfg.OnMode())
}

func (t *HumidifierTranslator) TurnOff() model.ServiceCall {
	return t.climateCall("set_hvac_mode", "hvac_mode", model.StateOff)
}

func (t *HumidifierTranslator) SetHumidity(humidity int) model.ServiceCall {
	return t.climateCall("set_humidity", "humidity", humidity)
}

// SetMode forwards a preset change. Modes outside the known list are refused.
func (t *HumidifierTranslator) SetMode(h *model.HumidifierState, mode string) (model.ServiceCall, error) {
	if h.SupportsModes() && !h.HasMode(mode) {
		return model.ServiceCall{}, fmt.Errorf("%w: %q not in %v", model.ErrModeNotAvailable, mode, h.AvailableModes)
	}
	return t.climateCall("set_preset_mode", "preset_mode", mode), nil
}

func (t *HumidifierTranslator) climateCall(service, key string, value interface{}) model.ServiceCall {
	return model.ServiceCall{
		Domain:  "climate",
		Service: service,
		Data: map[string]interface{}{
			"entity_id": t.cfg.ClimateEntity,
			key:         value,
		},
	}
}
