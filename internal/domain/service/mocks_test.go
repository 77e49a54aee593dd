package service

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

type MockHAPort struct {
	mock.Mock
}

func (m *MockHAPort) GetState(ctx context.Context, entityID string) (*model.EntityState, error) {
	args := m.Called(ctx, entityID)
	if fn, ok := args.Get(0).(func(context.Context, string) *model.EntityState); ok {
		return fn(ctx, entityID), args.Error(1)
	}
	state, _ := args.Get(0).(*model.EntityState)
	return state, args.Error(1)
}

func (m *MockHAPort) GetStates(ctx context.Context) ([]*model.EntityState, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.EntityState), args.Error(1)
}

func (m *MockHAPort) GetAllEntities(ctx context.Context, domain string) ([]ports.HomeAssistantEntity, error) {
	args := m.Called(ctx, domain)
	return args.Get(0).([]ports.HomeAssistantEntity), args.Error(1)
}

func (m *MockHAPort) CallService(ctx context.Context, call model.ServiceCall) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockHAPort) Configure(url, token string) {
	m.Called(url, token)
}

func (m *MockHAPort) IsConfigured() bool {
	return m.Called().Bool(0)
}

// recordingPublisher keeps everything announced or published.
type recordingPublisher struct {
	mu          sync.Mutex
	announced   []string
	humidifiers []model.HumidifierState
	fans        []model.FanModeState
	fanAnnounce []model.FanModeState
	removed     []string

	failAnnounce int // number of upcoming AnnounceHumidifier calls that time out
}

var errAnnounceTimeout = errors.New("mqtt operation timed out")

func (p *recordingPublisher) AnnounceHumidifier(ctx context.Context, cfg *model.ConverterConfig, h model.HumidifierState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAnnounce > 0 {
		p.failAnnounce--
		return errAnnounceTimeout
	}
	p.announced = append(p.announced, cfg.ID())
	return nil
}

func (p *recordingPublisher) PublishHumidifier(ctx context.Context, h model.HumidifierState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.humidifiers = append(p.humidifiers, h)
	return nil
}

func (p *recordingPublisher) AnnounceFanMode(ctx context.Context, cfg *model.ConverterConfig, f model.FanModeState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fanAnnounce = append(p.fanAnnounce, f)
	return nil
}

func (p *recordingPublisher) PublishFanMode(ctx context.Context, f model.FanModeState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fans = append(p.fans, f)
	return nil
}

func (p *recordingPublisher) Remove(ctx context.Context, cfg *model.ConverterConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, cfg.ID())
	return nil
}

func (p *recordingPublisher) lastHumidifier() model.HumidifierState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.humidifiers[len(p.humidifiers)-1]
}

func (p *recordingPublisher) lastFan() model.FanModeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fans[len(p.fans)-1]
}

type memoryRepo struct {
	mu  sync.Mutex
	cfg model.Config
}

func (r *memoryRepo) Get(ctx context.Context) (*model.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.cfg
	out.Converters = nil
	for _, cc := range r.cfg.Converters {
		out.Converters = append(out.Converters, cc.Clone())
	}
	return &out, nil
}

func (r *memoryRepo) Save(ctx context.Context, cfg *model.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = *cfg
	return nil
}

type memoryStore struct {
	mu     sync.Mutex
	states map[string]model.RestoreState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]model.RestoreState)}
}

func (s *memoryStore) LoadRestoreState(ctx context.Context, id string) (model.RestoreState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id], nil
}

func (s *memoryStore) SaveRestoreState(ctx context.Context, id string, state model.RestoreState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = state
	return nil
}

func (s *memoryStore) DeleteRestoreState(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}
