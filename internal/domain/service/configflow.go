package service

import (
	"context"
	"fmt"
	"strings"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/domain/translator"
	"esphome-humidifier-bridge/internal/ports"
)

// ParseModesText splits a comma separated mode list, dropping blanks.
func ParseModesText(raw string) []string {
	var modes []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	return modes
}

// ClimateOptions reads the selectable modes from the live climate entity.
// Missing or unavailable entities yield empty lists.
func (s *BridgeService) ClimateOptions(ctx context.Context, climateEntity string) (ports.ClimateOptions, error) {
	opts := ports.ClimateOptions{ClimateEntity: climateEntity}
	if !model.ValidEntityID(climateEntity) || model.EntityDomain(climateEntity) != "climate" {
		return opts, fmt.Errorf("%w: %q", model.ErrInvalidEntityID, climateEntity)
	}
	if !s.deps.HomeAssistant.IsConfigured() {
		return opts, model.ErrNotConfigured
	}
	state, err := s.deps.HomeAssistant.GetState(ctx, climateEntity)
	if err != nil {
		return opts, err
	}
	if !state.Valid() {
		return opts, nil
	}
	for _, m := range state.StringsAttr("hvac_modes") {
		if m != model.StateOff {
			opts.HVACModes = append(opts.HVACModes, m)
		}
	}
	opts.PresetModes = state.StringsAttr("preset_modes")
	opts.FanModes = translator.FanModes(state)
	return opts, nil
}

// cleanEntry trims the input; empty values mean "not configured".
func cleanEntry(in *model.ConverterConfig) *model.ConverterConfig {
	out := in.Clone()
	out.ClimateEntity = strings.TrimSpace(out.ClimateEntity)
	out.Name = strings.TrimSpace(out.Name)
	out.OnHVACMode = strings.TrimSpace(out.OnHVACMode)
	for _, comp := range model.CompanionSpecs {
		out.SetCompanion(comp.Key, out.Companion(comp.Key))
	}
	if in.Modes != nil {
		modes := make([]string, 0, len(in.Modes))
		for _, m := range in.Modes {
			modes = append(modes, ParseModesText(m)...)
		}
		out.Modes = modes
	}
	return out
}

// CreateEntry converts a new climate entity. Unset on_hvac_mode and modes
// are pre-filled from the live entity.
func (s *BridgeService) CreateEntry(ctx context.Context, input *model.ConverterConfig) (*model.ConverterConfig, error) {
	entry := cleanEntry(input)
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s.hasClimate(cfg, entry.ClimateEntity, "") {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateClimate, entry.ClimateEntity)
	}

	if entry.Name == "" {
		entry.Name = model.DefaultName
	}
	if entry.OnHVACMode == "" || len(entry.Modes) == 0 {
		opts, err := s.ClimateOptions(ctx, entry.ClimateEntity)
		if err != nil {
			s.logger.Warn("could not read climate options", "climate_entity", entry.ClimateEntity, "error", err)
		}
		if entry.OnHVACMode == "" {
			entry.OnHVACMode = model.DefaultOnHVACMode
			if len(opts.HVACModes) > 0 {
				entry.OnHVACMode = opts.HVACModes[0]
			}
		}
		if len(entry.Modes) == 0 && len(opts.PresetModes) > 0 {
			entry.Modes = opts.PresetModes
		}
	}

	cfg.Converters = append(cfg.Converters, entry)
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}
	s.startConverter(ctx, entry)
	s.deps.metrics().ConvertersLoaded(len(s.snapshot()))
	s.logger.Info("converter created", "climate_entity", entry.ClimateEntity, "name", entry.Name)
	return entry.Clone(), nil
}

// UpdateEntry merges input into a stored entry and restarts its converter.
// Empty fields keep their current value; a non-nil Modes slice replaces the
// mode list, even when empty. The entities keep their registration unless
// the climate entity, and with it the unique id, changes.
func (s *BridgeService) UpdateEntry(ctx context.Context, converterID string, input *model.ConverterConfig) (*model.ConverterConfig, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	idx := storedIndex(cfg, converterID)
	if idx < 0 {
		return nil, s.notEditable(converterID)
	}

	patch := cleanEntry(input)
	current := cfg.Converters[idx]
	merged := current.Clone()
	if patch.ClimateEntity != "" {
		merged.ClimateEntity = patch.ClimateEntity
	}
	if patch.Name != "" {
		merged.Name = patch.Name
	}
	if patch.OnHVACMode != "" {
		merged.OnHVACMode = patch.OnHVACMode
	}
	if patch.MinHumidity != nil {
		merged.MinHumidity = patch.MinHumidity
	}
	if patch.MaxHumidity != nil {
		merged.MaxHumidity = patch.MaxHumidity
	}
	if input.Modes != nil {
		merged.Modes = patch.Modes
	}
	for _, comp := range model.CompanionSpecs {
		if eid := patch.Companion(comp.Key); eid != "" {
			merged.SetCompanion(comp.Key, eid)
		}
	}
	if patch.Hue != nil {
		merged.Hue = patch.Hue
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if s.hasClimate(cfg, merged.ClimateEntity, converterID) {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateClimate, merged.ClimateEntity)
	}

	cfg.Converters[idx] = merged
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}
	moved := merged.ClimateEntity != current.ClimateEntity
	if err := s.stopConverter(ctx, converterID, moved); err != nil {
		s.logger.Warn("could not stop converter", "converter", converterID, "error", err)
	}
	if moved {
		s.deleteRestoreState(ctx, converterID)
	}
	s.startConverter(ctx, merged)
	s.logger.Info("converter updated", "climate_entity", merged.ClimateEntity)
	return merged.Clone(), nil
}

// DeleteEntry removes a stored entry and withdraws its entities.
func (s *BridgeService) DeleteEntry(ctx context.Context, converterID string) error {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return err
	}
	idx := storedIndex(cfg, converterID)
	if idx < 0 {
		return s.notEditable(converterID)
	}
	cfg.Converters = append(cfg.Converters[:idx], cfg.Converters[idx+1:]...)
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return err
	}
	if err := s.stopConverter(ctx, converterID, true); err != nil {
		s.logger.Warn("could not stop converter", "converter", converterID, "error", err)
	}
	s.deleteRestoreState(ctx, converterID)
	s.deps.metrics().ConvertersLoaded(len(s.snapshot()))
	return nil
}

func (s *BridgeService) deleteRestoreState(ctx context.Context, converterID string) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.DeleteRestoreState(ctx, converterID); err != nil {
		s.logger.Warn("could not delete restore state", "converter", converterID, "error", err)
	}
}

func (s *BridgeService) notEditable(converterID string) error {
	for _, cc := range s.static {
		if cc.ID() == converterID {
			return fmt.Errorf("%w: %s is defined in the bootstrap file", model.ErrNotEditable, converterID)
		}
	}
	return fmt.Errorf("%w: %s", model.ErrConverterNotFound, converterID)
}

// hasClimate reports whether a converter other than exceptID uses
// climateEntity among running converters and configured entries.
func (s *BridgeService) hasClimate(cfg *model.Config, climateEntity, exceptID string) bool {
	for _, conv := range s.snapshot() {
		if conv.ID() != exceptID && conv.cfg.ClimateEntity == climateEntity {
			return true
		}
	}
	for _, list := range [][]*model.ConverterConfig{s.static, cfg.Converters} {
		for _, cc := range list {
			if cc.ID() != exceptID && cc.ClimateEntity == climateEntity {
				return true
			}
		}
	}
	return false
}

func storedIndex(cfg *model.Config, converterID string) int {
	for i, cc := range cfg.Converters {
		if cc.ID() == converterID {
			return i
		}
	}
	return -1
}
