package ports

import (
	"context"

	"esphome-humidifier-bridge/internal/domain/model"
)

// EntityPublisher exposes converted entities to Home Assistant.
type EntityPublisher interface {
	AnnounceHumidifier(ctx context.Context, cfg *model.ConverterConfig, h model.HumidifierState) error
	PublishHumidifier(ctx context.Context, h model.HumidifierState) error
	AnnounceFanMode(ctx context.Context, cfg *model.ConverterConfig, f model.FanModeState) error
	PublishFanMode(ctx context.Context, f model.FanModeState) error
	Remove(ctx context.Context, cfg *model.ConverterConfig) error
}

// CommandHandler receives commands addressed to a converter by its id.
type CommandHandler interface {
	TurnOn(ctx context.Context, converterID string) error
	TurnOff(ctx context.Context, converterID string) error
	SetHumidity(ctx context.Context, converterID string, humidity int) error
	SetMode(ctx context.Context, converterID string, mode string) error
	SelectFanOption(ctx context.Context, converterID string, option string) error
}

type Metrics interface {
	EventProcessed(entityKind string)
	ServiceCalled(service string, err error)
	HumidifierUpdated(h model.HumidifierState)
	ConvertersLoaded(n int)
}
