package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/domain/translator"
	"esphome-humidifier-bridge/internal/ports"
)

// Dependencies are the collaborators shared by the bridge and its converters.
type Dependencies struct {
	HomeAssistant ports.HomeAssistantPort
	Publisher     ports.EntityPublisher
	Store         ports.StateStore
	Metrics       ports.Metrics
	Logger        *slog.Logger
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Dependencies) metrics() ports.Metrics {
	if d.Metrics == nil {
		return noopMetrics{}
	}
	return d.Metrics
}

type BridgeService struct {
	deps       Dependencies
	configRepo ports.ConfigRepository
	static     []*model.ConverterConfig // defined in the bootstrap file, not editable at runtime
	hue        *translator.HueStrategy
	logger     *slog.Logger

	mu         sync.RWMutex
	converters map[string]*Converter
	order      []string

	flowMu sync.Mutex // serializes entry create, update and delete
}

func NewBridgeService(deps Dependencies, configRepo ports.ConfigRepository, static []*model.ConverterConfig) *BridgeService {
	return &BridgeService{
		deps:       deps,
		configRepo: configRepo,
		static:     static,
		hue:        &translator.HueStrategy{},
		logger:     deps.logger(),
		converters: make(map[string]*Converter),
	}
}

// Start loads every converter from the bootstrap file and the stored entries
// and brings them online.
func (s *BridgeService) Start(ctx context.Context) error {
	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("load stored entries: %w", err)
	}

	all := make([]*model.ConverterConfig, 0, len(s.static)+len(cfg.Converters))
	all = append(all, s.static...)
	all = append(all, cfg.Converters...)

	seen := make(map[string]bool)
	for _, cc := range all {
		if err := cc.Validate(); err != nil {
			return err
		}
		if seen[cc.ClimateEntity] {
			return fmt.Errorf("%w: %s", model.ErrDuplicateClimate, cc.ClimateEntity)
		}
		seen[cc.ClimateEntity] = true
	}

	for _, cc := range all {
		s.startConverter(ctx, cc)
	}
	s.deps.metrics().ConvertersLoaded(len(all))
	s.logger.Info("bridge started", "converters", len(all))
	return nil
}

// Stop flushes every converter's restore state before shutdown.
func (s *BridgeService) Stop(ctx context.Context) {
	for _, conv := range s.snapshot() {
		conv.Stop(ctx)
	}
	s.logger.Info("bridge stopped")
}

func (s *BridgeService) startConverter(ctx context.Context, cc *model.ConverterConfig) {
	conv := NewConverter(cc.Clone(), s.deps)
	conv.Start(ctx)
	s.mu.Lock()
	s.converters[conv.ID()] = conv
	s.order = append(s.order, conv.ID())
	s.mu.Unlock()
}

// stopConverter unregisters a converter. With remove set its entities are
// withdrawn from Home Assistant; otherwise only its restore state is flushed
// and the entities stay registered.
func (s *BridgeService) stopConverter(ctx context.Context, id string, remove bool) error {
	s.mu.Lock()
	conv, ok := s.converters[id]
	if ok {
		delete(s.converters, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrConverterNotFound, id)
	}
	if !remove {
		conv.Stop(ctx)
		return nil
	}
	return conv.Remove(ctx)
}

// HandleEvent routes a state_changed event to the converters tracking it.
func (s *BridgeService) HandleEvent(ctx context.Context, ev model.StateChangedEvent) {
	for _, conv := range s.snapshot() {
		if conv.Tracks(ev.EntityID) {
			s.deps.metrics().EventProcessed(model.EntityDomain(ev.EntityID))
			conv.HandleStateChanged(ctx, ev)
		}
	}
}

// Resync refreshes every converter, typically after the event stream reconnected.
func (s *BridgeService) Resync(ctx context.Context) {
	for _, conv := range s.snapshot() {
		conv.Resync(ctx)
	}
}

func (s *BridgeService) snapshot() []*Converter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Converter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.converters[id])
	}
	return out
}

func (s *BridgeService) converter(id string) (*Converter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.converters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrConverterNotFound, id)
	}
	return conv, nil
}

func (s *BridgeService) ListConverters(ctx context.Context) []*model.ConverterConfig {
	convs := s.snapshot()
	out := make([]*model.ConverterConfig, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conv.Config())
	}
	return out
}

func (s *BridgeService) Humidifier(ctx context.Context, converterID string) (model.HumidifierState, *model.FanModeState, error) {
	conv, err := s.converter(converterID)
	if err != nil {
		return model.HumidifierState{}, nil, err
	}
	return conv.Snapshot(), conv.FanMode(), nil
}

// Commands

func (s *BridgeService) TurnOn(ctx context.Context, converterID string) error {
	conv, err := s.converter(converterID)
	if err != nil {
		return err
	}
	return conv.TurnOn(ctx)
}

func (s *BridgeService) TurnOff(ctx context.Context, converterID string) error {
	conv, err := s.converter(converterID)
	if err != nil {
		return err
	}
	return conv.TurnOff(ctx)
}

func (s *BridgeService) SetHumidity(ctx context.Context, converterID string, humidity int) error {
	conv, err := s.converter(converterID)
	if err != nil {
		return err
	}
	return conv.SetHumidity(ctx, humidity)
}

func (s *BridgeService) SetMode(ctx context.Context, converterID string, mode string) error {
	conv, err := s.converter(converterID)
	if err != nil {
		return err
	}
	return conv.SetMode(ctx, mode)
}

func (s *BridgeService) SelectFanOption(ctx context.Context, converterID string, option string) error {
	conv, err := s.converter(converterID)
	if err != nil {
		return err
	}
	return conv.SelectFanOption(ctx, option)
}

// Hue surface

type hueEntry struct {
	hueID string
	conv  *Converter
}

// hueEntries lists exposed converters; ones without a fixed id are numbered
// after the highest fixed numeric id.
func (s *BridgeService) hueEntries() []hueEntry {
	var entries []hueEntry
	next := 1
	used := make(map[string]bool)
	for _, conv := range s.snapshot() {
		if conv.cfg.Hue == nil || !conv.cfg.Hue.Expose || conv.cfg.Hue.HueID == "" {
			continue
		}
		used[conv.cfg.Hue.HueID] = true
		if n, err := strconv.Atoi(conv.cfg.Hue.HueID); err == nil && n >= next {
			next = n + 1
		}
	}
	for _, conv := range s.snapshot() {
		exp := conv.cfg.Hue
		if exp == nil || !exp.Expose {
			continue
		}
		id := exp.HueID
		if id == "" {
			for used[strconv.Itoa(next)] {
				next++
			}
			id = strconv.Itoa(next)
			used[id] = true
		}
		entries = append(entries, hueEntry{hueID: id, conv: conv})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, errA := strconv.Atoi(entries[i].hueID)
		b, errB := strconv.Atoi(entries[j].hueID)
		if errA != nil || errB != nil {
			return entries[i].hueID < entries[j].hueID
		}
		return a < b
	})
	return entries
}

func (s *BridgeService) device(e hueEntry) *model.Device {
	h := e.conv.Snapshot()
	return &model.Device{
		ID:          e.hueID,
		Name:        h.Name,
		ConverterID: e.conv.ID(),
		ExternalID:  e.conv.cfg.ClimateEntity,
		State:       s.hue.ToHue(&h, e.conv.cfg.Hue),
	}
}

func (s *BridgeService) GetDevices(ctx context.Context) ([]*model.Device, error) {
	entries := s.hueEntries()
	devices := make([]*model.Device, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, s.device(e))
	}
	return devices, nil
}

func (s *BridgeService) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	for _, e := range s.hueEntries() {
		if e.hueID == id {
			return s.device(e), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrDeviceNotFound, id)
}

func (s *BridgeService) UpdateDeviceState(ctx context.Context, id string, hueStateUpdate map[string]interface{}) error {
	for _, e := range s.hueEntries() {
		if e.hueID != id {
			continue
		}
		h := e.conv.Snapshot()
		cmd := s.hue.ToHA(hueStateUpdate, &h, e.conv.cfg.Hue)
		if cmd.On != nil {
			var err error
			if *cmd.On {
				err = e.conv.TurnOn(ctx)
			} else {
				err = e.conv.TurnOff(ctx)
			}
			if err != nil {
				return err
			}
		}
		if cmd.Humidity != nil {
			return e.conv.SetHumidity(ctx, *cmd.Humidity)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrDeviceNotFound, id)
}

// Config management

func (s *BridgeService) GetConfig(ctx context.Context) (*model.Config, error) {
	return s.configRepo.Get(ctx)
}

// UpdateConfig stores new Home Assistant credentials and resynchronises.
// Converters are managed through the entry operations.
func (s *BridgeService) UpdateConfig(ctx context.Context, cfg *model.Config) error {
	current, err := s.configRepo.Get(ctx)
	if err != nil {
		return err
	}
	current.HassURL = cfg.HassURL
	current.HassToken = cfg.HassToken
	if err := s.configRepo.Save(ctx, current); err != nil {
		return err
	}
	s.deps.HomeAssistant.Configure(cfg.HassURL, cfg.HassToken)
	s.Resync(ctx)
	return nil
}

func (s *BridgeService) GetAllEntities(ctx context.Context, domain string) ([]ports.HomeAssistantEntity, error) {
	if !s.deps.HomeAssistant.IsConfigured() {
		return nil, model.ErrNotConfigured
	}
	return s.deps.HomeAssistant.GetAllEntities(ctx, domain)
}

type noopMetrics struct{}

func (noopMetrics) EventProcessed(string)                   {}
func (noopMetrics) ServiceCalled(string, error)             {}
func (noopMetrics) HumidifierUpdated(model.HumidifierState) {}
func (noopMetrics) ConvertersLoaded(int)                    {}
