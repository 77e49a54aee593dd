package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/domain/translator"
	"esphome-humidifier-bridge/internal/ports"
)

// Converter keeps one humidifier (and its optional fan speed select) in
// sync with a climate entity and forwards commands back to it.
type Converter struct {
	cfg       *model.ConverterConfig
	haPort    ports.HomeAssistantPort
	publisher ports.EntityPublisher
	store     ports.StateStore
	metrics   ports.Metrics
	logger    *slog.Logger

	humidifierTr *translator.HumidifierTranslator
	fanTr        *translator.FanModeTranslator

	mu         sync.Mutex
	humidifier *model.HumidifierState
	fan        *model.FanModeState // nil until the climate entity reports fan modes
	restored   model.RestoreState
	tracked    map[string]bool
}

func NewConverter(cfg *model.ConverterConfig, deps Dependencies) *Converter {
	logger := deps.logger().With("climate_entity", cfg.ClimateEntity)
	c := &Converter{
		cfg:          cfg,
		haPort:       deps.HomeAssistant,
		publisher:    deps.Publisher,
		store:        deps.Store,
		metrics:      deps.metrics(),
		logger:       logger,
		humidifierTr: translator.NewHumidifierTranslator(cfg, logger),
		fanTr:        translator.NewFanModeTranslator(cfg),
		tracked:      make(map[string]bool),
	}
	c.humidifier = c.humidifierTr.NewState()
	for _, eid := range cfg.TrackedEntities() {
		c.tracked[eid] = true
	}
	return c
}

func (c *Converter) ID() string { return c.cfg.ID() }

func (c *Converter) Config() *model.ConverterConfig { return c.cfg.Clone() }

// Tracks reports whether state changes of entityID concern this converter.
func (c *Converter) Tracks(entityID string) bool {
	return c.tracked[entityID]
}

// Start restores the remembered state, announces the entities and pulls the
// current state of every tracked entity. A failed announce is only logged:
// the publisher keeps the discovery config and replays it once the broker
// is reachable.
func (c *Converter) Start(ctx context.Context) {
	if c.store != nil {
		restored, err := c.store.LoadRestoreState(ctx, c.cfg.ID())
		if err != nil {
			c.logger.Warn("could not load restore state", "error", err)
		}
		c.mu.Lock()
		c.restored = restored
		if restored.IsOn != nil {
			c.humidifier.IsOn = *restored.IsOn
		}
		c.mu.Unlock()
	}

	if err := c.publisher.AnnounceHumidifier(ctx, c.cfg, c.Snapshot()); err != nil {
		c.logger.Warn("could not announce humidifier", "error", err)
	}
	c.Resync(ctx)
}

// Resync pulls every tracked entity from Home Assistant and republishes.
func (c *Converter) Resync(ctx context.Context) {
	climate, err := c.haPort.GetState(ctx, c.cfg.ClimateEntity)
	if err != nil {
		c.logger.Warn("could not read climate entity", "error", err)
		climate = nil
	}

	companions := make(map[string]*model.EntityState)
	for _, eid := range c.cfg.TrackedEntities()[1:] {
		state, err := c.haPort.GetState(ctx, eid)
		if err != nil {
			c.logger.Warn("could not read companion entity", "entity_id", eid, "error", err)
			continue
		}
		if state != nil {
			companions[eid] = state
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyClimate(ctx, climate)
	for eid, state := range companions {
		c.humidifierTr.SyncCompanion(c.humidifier, eid, state)
	}
	c.publishLocked(ctx)
}

// HandleStateChanged applies a state_changed event of a tracked entity.
func (c *Converter) HandleStateChanged(ctx context.Context, ev model.StateChangedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.EntityID == c.cfg.ClimateEntity {
		c.applyClimate(ctx, ev.NewState)
		c.publishLocked(ctx)
		return
	}
	if ev.NewState == nil {
		return
	}
	if c.humidifierTr.SyncCompanion(c.humidifier, ev.EntityID, ev.NewState) {
		c.publishLocked(ctx)
	}
}

// Stop flushes the restore state; the entities stay announced.
func (c *Converter) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistLocked(ctx)
}

// Remove withdraws the entities from Home Assistant.
func (c *Converter) Remove(ctx context.Context) error {
	return c.publisher.Remove(ctx, c.cfg)
}

// Snapshot returns copies of the current humidifier state.
func (c *Converter) Snapshot() model.HumidifierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.humidifier.Snapshot()
}

// FanMode returns a copy of the fan select, or nil when none exists yet.
func (c *Converter) FanMode() *model.FanModeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fan == nil {
		return nil
	}
	f := c.fan.Snapshot()
	return &f
}

func (c *Converter) TurnOn(ctx context.Context) error {
	c.logger.Debug("turn_on", "hvac_mode", c.cfg.OnMode())
	return c.call(ctx, c.humidifierTr.TurnOn())
}

func (c *Converter) TurnOff(ctx context.Context) error {
	c.logger.Debug("turn_off")
	return c.call(ctx, c.humidifierTr.TurnOff())
}

func (c *Converter) SetHumidity(ctx context.Context, humidity int) error {
	c.logger.Debug("set_humidity", "humidity", humidity)
	return c.call(ctx, c.humidifierTr.SetHumidity(humidity))
}

func (c *Converter) SetMode(ctx context.Context, mode string) error {
	c.mu.Lock()
	call, err := c.humidifierTr.SetMode(c.humidifier, mode)
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("rejected mode", "mode", mode, "error", err)
		return err
	}
	c.logger.Debug("set_mode", "mode", mode)
	return c.call(ctx, call)
}

// SelectFanOption forwards option even when it is not one of the listed
// options; the device has the final say.
func (c *Converter) SelectFanOption(ctx context.Context, option string) error {
	c.mu.Lock()
	hasFan := c.fan != nil
	c.mu.Unlock()
	if !hasFan {
		return fmt.Errorf("%w: %s", model.ErrFanModeUnsupported, c.cfg.ClimateEntity)
	}
	c.logger.Debug("set_fan_mode", "fan_mode", option)
	return c.call(ctx, c.fanTr.SelectOption(option))
}

func (c *Converter) call(ctx context.Context, call model.ServiceCall) error {
	err := c.haPort.CallService(ctx, call)
	c.metrics.ServiceCalled(call.Domain+"."+call.Service, err)
	if err != nil {
		c.logger.Error("service call failed", "service", call.Domain+"."+call.Service, "error", err)
	}
	return err
}

// applyClimate must be called with mu held.
func (c *Converter) applyClimate(ctx context.Context, climate *model.EntityState) {
	c.humidifierTr.SyncClimate(c.humidifier, climate)

	if c.fan == nil {
		modes := translator.FanModes(climate)
		if len(modes) == 0 {
			return
		}
		c.fan = c.fanTr.NewState(modes)
		c.fanTr.Restore(c.fan, c.restored.FanOption)
		c.fanTr.Sync(c.fan, climate)
		c.logger.Info("fan speed select created", "options", c.fan.Options)
		c.announceFanLocked(ctx)
		return
	}
	if c.fanTr.Sync(c.fan, climate) {
		c.logger.Info("fan speed options changed", "options", c.fan.Options)
		c.announceFanLocked(ctx)
	}
}

func (c *Converter) announceFanLocked(ctx context.Context) {
	if err := c.publisher.AnnounceFanMode(ctx, c.cfg, c.fan.Snapshot()); err != nil {
		c.logger.Error("could not announce fan speed select", "error", err)
	}
}

// publishLocked must be called with mu held.
func (c *Converter) publishLocked(ctx context.Context) {
	snapshot := c.humidifier.Snapshot()
	if err := c.publisher.PublishHumidifier(ctx, snapshot); err != nil {
		c.logger.Error("could not publish humidifier state", "error", err)
	}
	c.metrics.HumidifierUpdated(snapshot)
	if c.fan != nil {
		if err := c.publisher.PublishFanMode(ctx, c.fan.Snapshot()); err != nil {
			c.logger.Error("could not publish fan speed state", "error", err)
		}
	}
	c.persistLocked(ctx)
}

func (c *Converter) persistLocked(ctx context.Context) {
	if c.store == nil || !c.humidifier.Available {
		return
	}
	next := model.RestoreState{FanOption: c.restored.FanOption}
	isOn := c.humidifier.IsOn
	next.IsOn = &isOn
	if c.fan != nil && c.fan.CurrentOption != "" {
		next.FanOption = c.fan.CurrentOption
	}
	if c.restored.IsOn != nil && *c.restored.IsOn == isOn && c.restored.FanOption == next.FanOption {
		return
	}
	if err := c.store.SaveRestoreState(ctx, c.cfg.ID(), next); err != nil {
		c.logger.Warn("could not save restore state", "error", err)
		return
	}
	c.restored = next
}
