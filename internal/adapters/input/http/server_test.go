package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amimof/huego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) TurnOn(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBridge) TurnOff(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBridge) SetHumidity(ctx context.Context, id string, humidity int) error {
	return m.Called(ctx, id, humidity).Error(0)
}

func (m *MockBridge) SetMode(ctx context.Context, id string, mode string) error {
	return m.Called(ctx, id, mode).Error(0)
}

func (m *MockBridge) SelectFanOption(ctx context.Context, id string, option string) error {
	return m.Called(ctx, id, option).Error(0)
}

func (m *MockBridge) GetDevices(ctx context.Context) ([]*model.Device, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.Device), args.Error(1)
}

func (m *MockBridge) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *MockBridge) UpdateDeviceState(ctx context.Context, id string, state map[string]interface{}) error {
	return m.Called(ctx, id, state).Error(0)
}

func (m *MockBridge) ListConverters(ctx context.Context) []*model.ConverterConfig {
	return m.Called(ctx).Get(0).([]*model.ConverterConfig)
}

func (m *MockBridge) Humidifier(ctx context.Context, id string) (model.HumidifierState, *model.FanModeState, error) {
	args := m.Called(ctx, id)
	var fan *model.FanModeState
	if f := args.Get(1); f != nil {
		fan = f.(*model.FanModeState)
	}
	return args.Get(0).(model.HumidifierState), fan, args.Error(2)
}

func (m *MockBridge) ClimateOptions(ctx context.Context, climateEntity string) (ports.ClimateOptions, error) {
	args := m.Called(ctx, climateEntity)
	return args.Get(0).(ports.ClimateOptions), args.Error(1)
}

func (m *MockBridge) CreateEntry(ctx context.Context, input *model.ConverterConfig) (*model.ConverterConfig, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConverterConfig), args.Error(1)
}

func (m *MockBridge) UpdateEntry(ctx context.Context, id string, input *model.ConverterConfig) (*model.ConverterConfig, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConverterConfig), args.Error(1)
}

func (m *MockBridge) DeleteEntry(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBridge) GetConfig(ctx context.Context) (*model.Config, error) {
	args := m.Called(ctx)
	return args.Get(0).(*model.Config), args.Error(1)
}

func (m *MockBridge) UpdateConfig(ctx context.Context, cfg *model.Config) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockBridge) GetAllEntities(ctx context.Context, domain string) ([]ports.HomeAssistantEntity, error) {
	args := m.Called(ctx, domain)
	return args.Get(0).([]ports.HomeAssistantEntity), args.Error(1)
}

const converterID = "hki_esphome_humidifier_climate.dehum"

func serve(t *testing.T, bridge *MockBridge, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "humidifier_bridge_converters 1\n")
	})
	srv := NewServer(bridge, "192.168.1.50", 8080, metrics, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestServer_Description(t *testing.T) {
	rec := serve(t, &MockBridge{}, http.MethodGet, "/description.xml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<URLBase>http://192.168.1.50:8080/</URLBase>")
}

func TestServer_Register(t *testing.T) {
	rec := serve(t, &MockBridge{}, http.MethodPost, "/api", `{"devicetype":"echo"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"success":{"username":"admin"}}]`, rec.Body.String())
}

func TestServer_Lights(t *testing.T) {
	bridge := &MockBridge{}
	devices := []*model.Device{
		{ID: "3", Name: "Basement", ConverterID: converterID, State: &huego.State{On: true, Bri: 128, Reachable: true}},
	}
	bridge.On("GetDevices", mock.Anything).Return(devices, nil)

	rec := serve(t, bridge, http.MethodGet, "/api/admin/lights", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var lights map[string]huego.Light
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lights))
	require.Contains(t, lights, "3")
	assert.Equal(t, "Basement", lights["3"].Name)
	assert.Equal(t, "Dimmable light", lights["3"].Type)
	assert.Equal(t, uint8(128), lights["3"].State.Bri)

	rec = serve(t, bridge, http.MethodGet, "/api/admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bridgeid":"001788FFFE102201"`)
}

func TestServer_GetLightNotFound(t *testing.T) {
	bridge := &MockBridge{}
	bridge.On("GetDevice", mock.Anything, "9").Return(nil, fmt.Errorf("%w: 9", model.ErrDeviceNotFound))

	rec := serve(t, bridge, http.MethodGet, "/api/admin/lights/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"address":"/lights/9"`)
}

func TestServer_SetLightState(t *testing.T) {
	bridge := &MockBridge{}
	bridge.On("UpdateDeviceState", mock.Anything, "3", map[string]interface{}{"on": true}).Return(nil)

	rec := serve(t, bridge, http.MethodPut, "/api/admin/lights/3/state", `{"on":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"success":{"/lights/3/state/on":true}}]`, rec.Body.String())
	bridge.AssertExpectations(t)
}

func TestServer_CreateConverter(t *testing.T) {
	bridge := &MockBridge{}
	bridge.On("CreateEntry", mock.Anything, mock.MatchedBy(func(c *model.ConverterConfig) bool {
		return c.ClimateEntity == "climate.dehum" && assert.ObjectsAreEqual([]string{"smart", "turbo"}, c.Modes)
	})).Return(&model.ConverterConfig{ClimateEntity: "climate.dehum", Modes: []string{"smart", "turbo"}}, nil).Once()
	bridge.On("CreateEntry", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: climate.dehum", model.ErrDuplicateClimate))

	rec := serve(t, bridge, http.MethodPost, "/admin/converters", `{"climate_entity":"climate.dehum","modes_text":"smart, turbo,"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(t, bridge, http.MethodPost, "/admin/converters", `{"climate_entity":"climate.dehum"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_BootstrapConverterNotEditable(t *testing.T) {
	bridge := &MockBridge{}
	notEditable := fmt.Errorf("%w: hki_esphome_humidifier_climate.cellar is defined in the bootstrap file", model.ErrNotEditable)
	bridge.On("UpdateEntry", mock.Anything, "hki_esphome_humidifier_climate.cellar", mock.Anything).Return(nil, notEditable)
	bridge.On("DeleteEntry", mock.Anything, "hki_esphome_humidifier_climate.cellar").Return(notEditable)

	rec := serve(t, bridge, http.MethodPut, "/admin/converters/hki_esphome_humidifier_climate.cellar", `{"name":"Cellar"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, bridge, http.MethodDelete, "/admin/converters/hki_esphome_humidifier_climate.cellar", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetConverter(t *testing.T) {
	bridge := &MockBridge{}
	target := 50
	h := model.HumidifierState{ID: converterID, Name: "Basement", Available: true, IsOn: true, TargetHumidity: &target, MinHumidity: 30, MaxHumidity: 80, SourceClimateEntity: "climate.dehum"}
	fan := &model.FanModeState{ID: converterID + "_fan_mode", Options: []string{"low", "high"}, CurrentOption: "low", Available: true}
	bridge.On("Humidifier", mock.Anything, converterID).Return(h, fan, nil)
	bridge.On("Humidifier", mock.Anything, "nope").Return(model.HumidifierState{}, nil, model.ErrConverterNotFound)

	rec := serve(t, bridge, http.MethodGet, "/admin/converters/"+converterID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view humidifierView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 50, *view.TargetHumidity)
	assert.Equal(t, "low", view.FanMode.CurrentOption)
	assert.Equal(t, "climate.dehum", view.Attributes["source_climate_entity"])

	rec = serve(t, bridge, http.MethodGet, "/admin/converters/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Commands(t *testing.T) {
	bridge := &MockBridge{}
	bridge.On("SetHumidity", mock.Anything, converterID, 45).Return(nil)
	bridge.On("SetMode", mock.Anything, converterID, "turbo").Return(fmt.Errorf("%w: turbo", model.ErrModeNotAvailable))
	bridge.On("TurnOff", mock.Anything, converterID).Return(model.ErrNotConfigured)

	path := "/admin/converters/" + converterID + "/commands"
	assert.Equal(t, http.StatusNoContent, serve(t, bridge, http.MethodPost, path, `{"command":"set_humidity","humidity":45}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, bridge, http.MethodPost, path, `{"command":"set_mode","mode":"turbo"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, bridge, http.MethodPost, path, `{"command":"turn_off"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, bridge, http.MethodPost, path, `{"command":"set_humidity"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, bridge, http.MethodPost, path, `{"command":"explode"}`).Code)
}

func TestServer_AdminEntitiesAndConfig(t *testing.T) {
	bridge := &MockBridge{}
	bridge.On("GetAllEntities", mock.Anything, "climate").Return([]ports.HomeAssistantEntity{{EntityID: "climate.dehum", FriendlyName: "Dehum"}}, nil)
	bridge.On("ClimateOptions", mock.Anything, "climate.dehum").Return(ports.ClimateOptions{ClimateEntity: "climate.dehum", HVACModes: []string{"dry"}}, nil)
	bridge.On("UpdateConfig", mock.Anything, &model.Config{HassURL: "http://ha:8123", HassToken: "t"}).Return(nil)
	bridge.On("DeleteEntry", mock.Anything, converterID).Return(nil)

	rec := serve(t, bridge, http.MethodGet, "/admin/ha-entities?domain=climate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "climate.dehum")

	rec = serve(t, bridge, http.MethodGet, "/admin/climate-options?entity_id=climate.dehum", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hvac_modes":["dry"]`)

	rec = serve(t, bridge, http.MethodPost, "/admin/config", `{"hass_url":"http://ha:8123","hass_token":"t"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, bridge, http.MethodDelete, "/admin/converters/"+converterID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	bridge.AssertExpectations(t)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	rec := serve(t, &MockBridge{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, &MockBridge{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "humidifier_bridge_converters")
}
