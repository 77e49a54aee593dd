package ports

import (
	"context"

	"esphome-humidifier-bridge/internal/domain/model"
)

type ConfigRepository interface {
	Get(ctx context.Context) (*model.Config, error)
	Save(ctx context.Context, config *model.Config) error
}

// StateStore keeps the per-converter state restored after a restart.
type StateStore interface {
	LoadRestoreState(ctx context.Context, converterID string) (model.RestoreState, error)
	SaveRestoreState(ctx context.Context, converterID string, state model.RestoreState) error
	DeleteRestoreState(ctx context.Context, converterID string) error
}
