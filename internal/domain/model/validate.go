package model

import "fmt"

// Validate enforces the converter invariants beyond field typing.
func (c *ConverterConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if !ValidEntityID(c.ClimateEntity) || EntityDomain(c.ClimateEntity) != "climate" {
		return fmt.Errorf("%w: climate_entity %q", ErrInvalidEntityID, c.ClimateEntity)
	}
	for name, v := range map[string]*int{"min_humidity": c.MinHumidity, "max_humidity": c.MaxHumidity} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%w: %s must be within 0..100, got %d", ErrInvalidConfig, name, *v)
		}
	}
	if c.MinHumidity != nil && c.MaxHumidity != nil && *c.MinHumidity > *c.MaxHumidity {
		return fmt.Errorf("%w: min_humidity %d exceeds max_humidity %d", ErrInvalidConfig, *c.MinHumidity, *c.MaxHumidity)
	}
	for _, comp := range CompanionSpecs {
		eid := c.Companion(comp.Key)
		if eid == "" {
			continue
		}
		if !ValidEntityID(eid) {
			return fmt.Errorf("%w: %s %q", ErrInvalidEntityID, comp.Key, eid)
		}
		if EntityDomain(eid) != string(comp.Kind) {
			return fmt.Errorf("%w: %s must be a %s entity, got %q", ErrInvalidEntityID, comp.Key, comp.Kind, eid)
		}
	}
	return nil
}
