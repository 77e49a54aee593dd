package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

// JSONStateStore keeps restore state for every converter in one file.
type JSONStateStore struct {
	filepath string
	logger   *slog.Logger
	mu       sync.Mutex
	states   map[string]model.RestoreState
	loaded   bool
}

var _ ports.StateStore = (*JSONStateStore)(nil)

func NewJSONStateStore(filepath string, logger *slog.Logger) *JSONStateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStateStore{filepath: filepath, logger: logger}
}

func (s *JSONStateStore) LoadRestoreState(ctx context.Context, converterID string) (model.RestoreState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return model.RestoreState{}, err
	}
	return s.states[converterID], nil
}

func (s *JSONStateStore) SaveRestoreState(ctx context.Context, converterID string, state model.RestoreState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.states[converterID] = state
	return s.flush()
}

func (s *JSONStateStore) DeleteRestoreState(ctx context.Context, converterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.states[converterID]; !ok {
		return nil
	}
	delete(s.states, converterID)
	return s.flush()
}

func (s *JSONStateStore) load() error {
	if s.loaded {
		return nil
	}
	s.states = make(map[string]model.RestoreState)
	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return err
	}
	s.loaded = true
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.states); err != nil {
			// Start empty; the file is rewritten on the next flush.
			s.logger.Warn("discarding unreadable restore state", "path", s.filepath, "error", err)
			s.states = make(map[string]model.RestoreState)
		}
	}
	return nil
}

func (s *JSONStateStore) flush() error {
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.filepath, data)
}
