package persistence

import (
	"context"
	"encoding/json"
	"esphome-humidifier-bridge/internal/domain/model"
	"os"
	"path/filepath"
	"sync"
)

const integrationDomain = "hki_esphome_humidifier"

type JSONConfigRepository struct {
	filepath string
	mu       sync.RWMutex
}

// Home Assistant .storage/core.config_entries, used to import entries
// created by the custom integration.
type haConfigEntries struct {
	Key  string `json:"key"`
	Data struct {
		Entries []haConfigEntry `json:"entries"`
	} `json:"data"`
}

type haConfigEntry struct {
	Domain  string                 `json:"domain"`
	Title   string                 `json:"title"`
	Data    map[string]interface{} `json:"data"`
	Options map[string]interface{} `json:"options"`
}

func NewJSONConfigRepository(filepath string) *JSONConfigRepository {
	return &JSONConfigRepository{filepath: filepath}
}

func (r *JSONConfigRepository) Get(ctx context.Context) (*model.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.Config{Converters: []*model.ConverterConfig{}}, nil
		}
		return nil, err
	}

	var cfg model.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Migration check: a file without converters may be an exported
	// Home Assistant config entries store
	if len(cfg.Converters) == 0 {
		return r.migrate(&cfg, data)
	}

	return &cfg, nil
}

func (r *JSONConfigRepository) migrate(cfg *model.Config, data []byte) (*model.Config, error) {
	cfg.Converters = []*model.ConverterConfig{}

	var store haConfigEntries
	if err := json.Unmarshal(data, &store); err != nil {
		return cfg, nil
	}

	for _, e := range store.Data.Entries {
		if e.Domain != integrationDomain {
			continue
		}
		// Options override data, as the integration reads {**data, **options}
		merged := make(map[string]interface{}, len(e.Data)+len(e.Options))
		for k, v := range e.Data {
			merged[k] = v
		}
		for k, v := range e.Options {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			continue
		}
		var cc model.ConverterConfig
		if err := json.Unmarshal(raw, &cc); err != nil || cc.ClimateEntity == "" {
			continue
		}
		if cc.Name == "" {
			cc.Name = e.Title
		}
		cfg.Converters = append(cfg.Converters, &cc)
	}

	return cfg, nil
}

func (r *JSONConfigRepository) Save(ctx context.Context, config *model.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return writeFile(r.filepath, data)
}

// writeFile replaces path through a temporary file so readers never see a
// partial document.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
