package ports

import (
	"context"

	"esphome-humidifier-bridge/internal/domain/model"
)

// ClimateOptions are the choices offered when a climate entity is converted.
type ClimateOptions struct {
	ClimateEntity string   `json:"climate_entity"`
	HVACModes     []string `json:"hvac_modes"`
	PresetModes   []string `json:"preset_modes"`
	FanModes      []string `json:"fan_modes"`
}

type BridgePort interface {
	CommandHandler

	// Hue surface
	GetDevices(ctx context.Context) ([]*model.Device, error)
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	UpdateDeviceState(ctx context.Context, id string, state map[string]interface{}) error

	// Converter management
	ListConverters(ctx context.Context) []*model.ConverterConfig
	Humidifier(ctx context.Context, converterID string) (model.HumidifierState, *model.FanModeState, error)
	ClimateOptions(ctx context.Context, climateEntity string) (ClimateOptions, error)
	CreateEntry(ctx context.Context, input *model.ConverterConfig) (*model.ConverterConfig, error)
	UpdateEntry(ctx context.Context, converterID string, input *model.ConverterConfig) (*model.ConverterConfig, error)
	DeleteEntry(ctx context.Context, converterID string) error

	// Config management
	GetConfig(ctx context.Context) (*model.Config, error)
	UpdateConfig(ctx context.Context, cfg *model.Config) error
	GetAllEntities(ctx context.Context, domain string) ([]HomeAssistantEntity, error)
}
