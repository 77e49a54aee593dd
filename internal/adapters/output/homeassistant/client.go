package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

type Client struct {
	url        string
	token      string
	httpClient *http.Client
	mu         sync.RWMutex

	cacheStates []*model.EntityState
	cacheTime   time.Time
}

var _ ports.HomeAssistantPort = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configure(url, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = strings.TrimSuffix(url, "/")
	c.token = token
	c.cacheStates = nil
	c.cacheTime = time.Time{}
}

func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url != "" && c.token != ""
}

// Endpoint returns the configured base URL and token.
func (c *Client) Endpoint() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url, c.token
}

// GetAllEntities lists entities of one domain (all when domain is empty).
func (c *Client) GetAllEntities(ctx context.Context, domain string) ([]ports.HomeAssistantEntity, error) {
	states, err := c.GetStates(ctx)
	if err != nil {
		return nil, err
	}

	var entities []ports.HomeAssistantEntity
	for _, s := range states {
		if domain != "" && model.EntityDomain(s.EntityID) != domain {
			continue
		}
		name := s.StringAttr("friendly_name")
		if name == "" {
			name = s.EntityID
		}
		entities = append(entities, ports.HomeAssistantEntity{
			EntityID:     s.EntityID,
			FriendlyName: name,
		})
	}

	return entities, nil
}

func (c *Client) GetStates(ctx context.Context) ([]*model.EntityState, error) {
	c.mu.RLock()
	if c.cacheStates != nil && time.Since(c.cacheTime) < 2*time.Second {
		res := c.cacheStates
		c.mu.RUnlock()
		return res, nil
	}
	c.mu.RUnlock()

	var states []*model.EntityState
	status, err := c.get(ctx, "/api/states", &states)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("HA API error: %d", status)
	}

	// Optimization: strip large attributes to save RAM
	for _, s := range states {
		delete(s.Attributes, "entity_picture")
		delete(s.Attributes, "entity_picture_local")
		delete(s.Attributes, "source_list")
		delete(s.Attributes, "sound_mode_list")
	}

	c.mu.Lock()
	c.cacheStates = states
	c.cacheTime = time.Now()
	c.mu.Unlock()

	return states, nil
}

func (c *Client) GetState(ctx context.Context, entityID string) (*model.EntityState, error) {
	var state model.EntityState
	status, err := c.get(ctx, "/api/states/"+url.PathEscape(entityID), &state)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &state, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("HA API error for %s: %d", entityID, status)
	}
}

// CallService posts to /api/services/<domain>/<service>; the call blocks
// until Home Assistant has executed it.
func (c *Client) CallService(ctx context.Context, call model.ServiceCall) error {
	urlBase, token := c.Endpoint()
	if urlBase == "" || token == "" {
		return model.ErrNotConfigured
	}
	if call.Domain == "" || call.Service == "" {
		return fmt.Errorf("invalid service call %q.%q", call.Domain, call.Service)
	}

	body, err := json.Marshal(call.Data)
	if err != nil {
		return fmt.Errorf("encode service data: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/services/%s/%s", urlBase, call.Domain, call.Service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", call.Domain, call.Service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HA API error for %s.%s: %d", call.Domain, call.Service, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) (int, error) {
	urlBase, token := c.Endpoint()
	if urlBase == "" || token == "" {
		return 0, model.ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlBase+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
