package translator

import "esphome-humidifier-bridge/internal/domain/model"

// FanModeTranslator mirrors climate.fan_mode into a select entity.
type FanModeTranslator struct {
	cfg *model.ConverterConfig
}

func NewFanModeTranslator(cfg *model.ConverterConfig) *FanModeTranslator {
	return &FanModeTranslator{cfg: cfg}
}

// FanModes returns the fan modes advertised by a usable climate state.
func FanModes(climate *model.EntityState) []string {
	if !climate.Valid() {
		return nil
	}
	return climate.StringsAttr("fan_modes")
}

func (t *FanModeTranslator) NewState(options []string) *model.FanModeState {
	return &model.FanModeState{
		ID:      t.cfg.FanModeID(),
		Name:    t.cfg.FanModeName(),
		Options: append([]string(nil), options...),
	}
}

// Restore applies a remembered option if it is still offered.
func (t *FanModeTranslator) Restore(f *model.FanModeState, option string) {
	if option == "" || option == model.StateUnknown || option == model.StateUnavailable {
		return
	}
	if f.HasOption(option) {
		f.CurrentOption = option
	}
}

// Sync folds the live climate state into f. It reports whether the option
// list changed, which requires the select to be re-announced.
func (t *FanModeTranslator) Sync(f *model.FanModeState, climate *model.EntityState) bool {
	if !climate.Valid() {
		f.Available = false
		return false
	}
	f.Available = true

	optionsChanged := false
	if live := climate.StringsAttr("fan_modes"); len(live) > 0 && !equalStrings(live, f.Options) {
		f.Options = live
		optionsChanged = true
	}
	if current := climate.StringAttr("fan_mode"); current != "" && f.HasOption(current) {
		f.CurrentOption = current
	}
	return optionsChanged
}

func (t *FanModeTranslator) SelectOption(option string) model.ServiceCall {
	return model.ServiceCall{
		Domain:  "climate",
		Service: "set_fan_mode",
		Data: map[string]interface{}{
			"entity_id": t.cfg.ClimateEntity,
			"fan_mode":  option,
		},
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
