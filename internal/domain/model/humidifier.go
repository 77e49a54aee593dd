package model

// HumidifierState is the view of the converted entity as published to Home Assistant.
type HumidifierState struct {
	ID        string
	Name      string
	Available bool

	IsOn            bool
	TargetHumidity  *int
	CurrentHumidity *float64
	Mode            string
	AvailableModes  []string
	MinHumidity     int
	MaxHumidity     int

	CurrentTemperature *float64
	Companions         map[string]interface{}

	SourceClimateEntity string
	OnHVACMode          string
}

// SupportsModes mirrors the MODES feature flag of the humidifier domain.
func (h *HumidifierState) SupportsModes() bool {
	return len(h.AvailableModes) > 0
}

func (h *HumidifierState) HasMode(mode string) bool {
	for _, m := range h.AvailableModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ExtraAttributes returns the extra state attributes of the humidifier.
func (h *HumidifierState) ExtraAttributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"source_climate_entity": h.SourceClimateEntity,
		"on_hvac_mode":          h.OnHVACMode,
	}
	if h.CurrentTemperature != nil {
		attrs["current_temperature"] = *h.CurrentTemperature
	}
	for k, v := range h.Companions {
		attrs[k] = v
	}
	return attrs
}

// Snapshot returns a copy safe to hand to publishers.
func (h *HumidifierState) Snapshot() HumidifierState {
	out := *h
	out.AvailableModes = append([]string(nil), h.AvailableModes...)
	if h.TargetHumidity != nil {
		v := *h.TargetHumidity
		out.TargetHumidity = &v
	}
	if h.CurrentHumidity != nil {
		v := *h.CurrentHumidity
		out.CurrentHumidity = &v
	}
	if h.CurrentTemperature != nil {
		v := *h.CurrentTemperature
		out.CurrentTemperature = &v
	}
	out.Companions = make(map[string]interface{}, len(h.Companions))
	for k, v := range h.Companions {
		out.Companions[k] = v
	}
	return out
}

// FanModeState is the fan speed select mirrored from the climate fan_mode.
type FanModeState struct {
	ID            string
	Name          string
	Available     bool
	Options       []string
	CurrentOption string
}

func (f *FanModeState) HasOption(option string) bool {
	for _, o := range f.Options {
		if o == option {
			return true
		}
	}
	return false
}

func (f *FanModeState) Snapshot() FanModeState {
	out := *f
	out.Options = append([]string(nil), f.Options...)
	return out
}

// RestoreState is what survives a restart for one converter.
type RestoreState struct {
	IsOn      *bool  `json:"is_on,omitempty"`
	FanOption string `json:"fan_option,omitempty"`
}
