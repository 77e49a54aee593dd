package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"esphome-humidifier-bridge/internal/domain/model"
)

func liveDehum(entityID string) *model.EntityState {
	return &model.EntityState{
		EntityID: entityID,
		State:    "dry",
		Attributes: map[string]interface{}{
			"hvac_modes":   []interface{}{"off", "dry", "auto"},
			"preset_modes": []interface{}{"none", "sleep"},
			"humidity":     55.0,
			"min_humidity": 30.0,
			"max_humidity": 80.0,
		},
	}
}

func newTestBridge(t *testing.T, static []*model.ConverterConfig, stored []*model.ConverterConfig) (*BridgeService, *MockHAPort, *recordingPublisher, *memoryRepo) {
	t.Helper()
	ha := new(MockHAPort)
	ha.On("GetState", mock.Anything, mock.MatchedBy(func(id string) bool { return model.EntityDomain(id) == "climate" })).
		Return(func(_ context.Context, id string) *model.EntityState { return liveDehum(id) }, nil)
	ha.On("GetState", mock.Anything, mock.MatchedBy(func(id string) bool { return model.EntityDomain(id) != "climate" })).
		Return(nil, nil)
	ha.On("IsConfigured").Return(true)
	pub := &recordingPublisher{}
	repo := &memoryRepo{cfg: model.Config{Converters: stored}}
	s := NewBridgeService(Dependencies{HomeAssistant: ha, Publisher: pub, Store: newMemoryStore()}, repo, static)
	return s, ha, pub, repo
}

func TestBridgeService_Start(t *testing.T) {
	static := []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}}
	stored := []*model.ConverterConfig{{ClimateEntity: "climate.attic", Name: "Attic"}}
	s, _, pub, _ := newTestBridge(t, static, stored)

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.ListConverters(context.Background()), 2)
	assert.Equal(t, []string{
		"hki_esphome_humidifier_climate.cellar",
		"hki_esphome_humidifier_climate.attic",
	}, pub.announced)

	h, fan, err := s.Humidifier(context.Background(), "hki_esphome_humidifier_climate.attic")
	require.NoError(t, err)
	assert.Equal(t, "Attic", h.Name)
	assert.Nil(t, fan)

	_, _, err = s.Humidifier(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrConverterNotFound)
}

func TestBridgeService_StopKeepsEntities(t *testing.T) {
	stored := []*model.ConverterConfig{{ClimateEntity: "climate.attic"}}
	s, _, pub, _ := newTestBridge(t, nil, stored)
	require.NoError(t, s.Start(context.Background()))

	s.Stop(context.Background())
	assert.Empty(t, pub.removed)
	assert.Len(t, s.ListConverters(context.Background()), 1)
}

func TestBridgeService_StartRejectsDuplicates(t *testing.T) {
	static := []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}}
	stored := []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}}
	s, _, _, _ := newTestBridge(t, static, stored)
	assert.ErrorIs(t, s.Start(context.Background()), model.ErrDuplicateClimate)

	s, _, _, _ = newTestBridge(t, []*model.ConverterConfig{{ClimateEntity: "sensor.cellar"}}, nil)
	assert.ErrorIs(t, s.Start(context.Background()), model.ErrInvalidEntityID)
}

func TestBridgeService_HandleEvent(t *testing.T) {
	s, _, pub, _ := newTestBridge(t, []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}}, nil)
	require.NoError(t, s.Start(context.Background()))
	published := len(pub.humidifiers)

	s.HandleEvent(context.Background(), model.StateChangedEvent{
		EntityID: "light.kitchen",
		NewState: &model.EntityState{EntityID: "light.kitchen", State: "on"},
	})
	assert.Len(t, pub.humidifiers, published)

	s.HandleEvent(context.Background(), model.StateChangedEvent{
		EntityID: "climate.cellar",
		NewState: &model.EntityState{EntityID: "climate.cellar", State: "off", Attributes: map[string]interface{}{"humidity": 60.0}},
	})
	last := pub.lastHumidifier()
	assert.False(t, last.IsOn)
	assert.Equal(t, 60, *last.TargetHumidity)
}

func TestBridgeService_CreateEntry(t *testing.T) {
	s, _, pub, repo := newTestBridge(t, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	ctx := context.Background()

	entry, err := s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: " climate.cellar ", TankLevelEntity: ""})
	require.NoError(t, err)
	assert.Equal(t, "climate.cellar", entry.ClimateEntity)
	assert.Equal(t, model.DefaultName, entry.Name)
	assert.Equal(t, "dry", entry.OnHVACMode)
	assert.Equal(t, []string{"none", "sleep"}, entry.Modes)
	assert.Len(t, repo.cfg.Converters, 1)
	assert.Contains(t, pub.announced, entry.ID())

	_, err = s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: "climate.cellar"})
	assert.ErrorIs(t, err, model.ErrDuplicateClimate)

	_, err = s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: "climate.attic", PM25Entity: "switch.pm25"})
	assert.ErrorIs(t, err, model.ErrInvalidEntityID)

	entry, err = s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: "climate.attic", OnHVACMode: "auto", Modes: []string{"sleep, turbo"}})
	require.NoError(t, err)
	assert.Equal(t, "auto", entry.OnHVACMode)
	assert.Equal(t, []string{"sleep", "turbo"}, entry.Modes)
}

func TestBridgeService_UpdateAndDeleteEntry(t *testing.T) {
	static := []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}}
	stored := []*model.ConverterConfig{{ClimateEntity: "climate.attic", Name: "Attic", Modes: []string{"sleep"}}}
	s, _, pub, repo := newTestBridge(t, static, stored)
	require.NoError(t, s.Start(context.Background()))
	ctx := context.Background()
	id := "hki_esphome_humidifier_climate.attic"

	updated, err := s.UpdateEntry(ctx, id, &model.ConverterConfig{Name: "Loft", PumpEntity: "switch.pump"})
	require.NoError(t, err)
	assert.Equal(t, "Loft", updated.Name)
	assert.Equal(t, []string{"sleep"}, updated.Modes)
	assert.Equal(t, "switch.pump", updated.PumpEntity)
	assert.Equal(t, "Loft", repo.cfg.Converters[0].Name)
	assert.Empty(t, pub.removed, "same climate entity keeps the registered entities")
	assert.Len(t, s.ListConverters(ctx), 2)

	// An explicit empty list clears the modes
	updated, err = s.UpdateEntry(ctx, id, &model.ConverterConfig{Modes: []string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Modes)

	_, err = s.UpdateEntry(ctx, id, &model.ConverterConfig{ClimateEntity: "climate.cellar"})
	assert.ErrorIs(t, err, model.ErrDuplicateClimate)

	_, err = s.UpdateEntry(ctx, "hki_esphome_humidifier_climate.cellar", &model.ConverterConfig{Name: "x"})
	assert.ErrorIs(t, err, model.ErrNotEditable)
	assert.ErrorIs(t, s.DeleteEntry(ctx, "hki_esphome_humidifier_climate.cellar"), model.ErrNotEditable)

	// Moving to another climate entity changes the unique id
	moved, err := s.UpdateEntry(ctx, id, &model.ConverterConfig{ClimateEntity: "climate.loft"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pub.removed)
	assert.Equal(t, "hki_esphome_humidifier_climate.loft", moved.ID())
	assert.Contains(t, pub.announced, moved.ID())
	_, _, err = s.Humidifier(ctx, id)
	assert.ErrorIs(t, err, model.ErrConverterNotFound)

	require.NoError(t, s.DeleteEntry(ctx, moved.ID()))
	assert.Contains(t, pub.removed, moved.ID())
	assert.Empty(t, repo.cfg.Converters)
	assert.Len(t, s.ListConverters(ctx), 1)
	assert.ErrorIs(t, s.DeleteEntry(ctx, moved.ID()), model.ErrConverterNotFound)
}

func TestBridgeService_CreateEntryWhileBrokerUnreachable(t *testing.T) {
	s, ha, pub, repo := newTestBridge(t, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	ctx := context.Background()

	pub.failAnnounce = 1
	entry, err := s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: "climate.attic"})
	require.NoError(t, err)
	assert.Len(t, s.ListConverters(ctx), 1)

	_, err = s.CreateEntry(ctx, &model.ConverterConfig{ClimateEntity: "climate.attic"})
	assert.ErrorIs(t, err, model.ErrDuplicateClimate)
	require.Len(t, repo.cfg.Converters, 1)
	assert.Equal(t, entry.ID(), repo.cfg.Converters[0].ID())

	restarted := NewBridgeService(Dependencies{HomeAssistant: ha, Publisher: &recordingPublisher{}, Store: newMemoryStore()}, repo, nil)
	require.NoError(t, restarted.Start(ctx))
	assert.Len(t, restarted.ListConverters(ctx), 1)
}

func TestBridgeService_CreateEntryChecksStoredEntries(t *testing.T) {
	stored := []*model.ConverterConfig{{ClimateEntity: "climate.attic"}}
	s, _, _, repo := newTestBridge(t, nil, stored)

	// Not started: the entry only exists in storage
	_, err := s.CreateEntry(context.Background(), &model.ConverterConfig{ClimateEntity: "climate.attic"})
	assert.ErrorIs(t, err, model.ErrDuplicateClimate)
	assert.Len(t, repo.cfg.Converters, 1)
}

func TestBridgeService_StartSurvivesAnnounceFailure(t *testing.T) {
	static := []*model.ConverterConfig{{ClimateEntity: "climate.cellar"}, {ClimateEntity: "climate.attic"}}
	s, _, pub, _ := newTestBridge(t, static, nil)
	pub.failAnnounce = 1

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.ListConverters(context.Background()), 2)
	assert.Equal(t, []string{"hki_esphome_humidifier_climate.attic"}, pub.announced)
}

func TestBridgeService_HueDevices(t *testing.T) {
	static := []*model.ConverterConfig{
		{ClimateEntity: "climate.cellar", Name: "Cellar", Hue: &model.HueExposure{Expose: true, HueID: "3"}},
		{ClimateEntity: "climate.attic", Name: "Attic", Hue: &model.HueExposure{Expose: true}},
		{ClimateEntity: "climate.garage"},
	}
	s, ha, _, _ := newTestBridge(t, static, nil)
	require.NoError(t, s.Start(context.Background()))
	ctx := context.Background()

	devices, err := s.GetDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "3", devices[0].ID)
	assert.Equal(t, "Cellar", devices[0].Name)
	assert.Equal(t, "4", devices[1].ID)
	assert.Equal(t, "Attic", devices[1].Name)
	assert.True(t, devices[0].State.On)
	assert.Equal(t, uint8(128), devices[0].State.Bri)

	d, err := s.GetDevice(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, "climate.attic", d.ExternalID)
	_, err = s.GetDevice(ctx, "9")
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	ha.On("CallService", mock.Anything, model.ServiceCall{Domain: "climate", Service: "set_hvac_mode",
		Data: map[string]interface{}{"entity_id": "climate.attic", "hvac_mode": "off"}}).Return(nil).Once()
	ha.On("CallService", mock.Anything, model.ServiceCall{Domain: "climate", Service: "set_humidity",
		Data: map[string]interface{}{"entity_id": "climate.attic", "humidity": 80}}).Return(nil).Once()

	require.NoError(t, s.UpdateDeviceState(ctx, "4", map[string]interface{}{"on": false, "bri": float64(254)}))
	ha.AssertExpectations(t)

	assert.ErrorIs(t, s.UpdateDeviceState(ctx, "9", map[string]interface{}{"on": true}), model.ErrDeviceNotFound)
}

func TestBridgeService_UpdateConfig(t *testing.T) {
	s, ha, _, repo := newTestBridge(t, nil, []*model.ConverterConfig{{ClimateEntity: "climate.attic"}})
	require.NoError(t, s.Start(context.Background()))
	ha.On("Configure", "http://ha:8123", "secret").Return().Once()

	require.NoError(t, s.UpdateConfig(context.Background(), &model.Config{HassURL: "http://ha:8123", HassToken: "secret"}))
	assert.Equal(t, "http://ha:8123", repo.cfg.HassURL)
	assert.Len(t, repo.cfg.Converters, 1)
	ha.AssertExpectations(t)
}

func TestParseModesText(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseModesText(" a, b,,c ,"))
	assert.Nil(t, ParseModesText(" , "))
}

func TestBridgeService_ClimateOptions(t *testing.T) {
	s, _, _, _ := newTestBridge(t, nil, nil)
	ctx := context.Background()

	opts, err := s.ClimateOptions(ctx, "climate.cellar")
	require.NoError(t, err)
	assert.Equal(t, []string{"dry", "auto"}, opts.HVACModes)
	assert.Equal(t, []string{"none", "sleep"}, opts.PresetModes)
	assert.Empty(t, opts.FanModes)

	_, err = s.ClimateOptions(ctx, "sensor.cellar")
	assert.ErrorIs(t, err, model.ErrInvalidEntityID)
}
