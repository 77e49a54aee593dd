package ports

import (
	"context"

	"esphome-humidifier-bridge/internal/domain/model"
)

type HomeAssistantEntity struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
}

type HomeAssistantPort interface {
	// GetState returns nil and no error when the entity does not exist.
	GetState(ctx context.Context, entityID string) (*model.EntityState, error)
	GetStates(ctx context.Context) ([]*model.EntityState, error)
	GetAllEntities(ctx context.Context, domain string) ([]HomeAssistantEntity, error)
	CallService(ctx context.Context, call model.ServiceCall) error
	Configure(url, token string)
	IsConfigured() bool
}

// EventSource streams state_changed events. onConnect runs after every
// (re)connection so callers can resynchronise what they may have missed.
type EventSource interface {
	Run(ctx context.Context, onEvent func(context.Context, model.StateChangedEvent), onConnect func(context.Context)) error
}
