package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

var entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// EntityState mirrors a Home Assistant state object.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed,omitempty"`
	LastUpdated string                 `json:"last_updated,omitempty"`
}

// Valid reports whether the state carries usable data.
func (s *EntityState) Valid() bool {
	return s != nil && s.State != StateUnknown && s.State != StateUnavailable
}

func (s *EntityState) Attr(name string) interface{} {
	if s == nil || s.Attributes == nil {
		return nil
	}
	return s.Attributes[name]
}

// StringsAttr reads a list-of-strings attribute, tolerating the []interface{}
// shape produced by JSON decoding.
func (s *EntityState) StringsAttr(name string) []string {
	switch v := s.Attr(name).(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func (s *EntityState) StringAttr(name string) string {
	str, _ := s.Attr(name).(string)
	return str
}

// StateChangedEvent is the payload of a Home Assistant state_changed event.
type StateChangedEvent struct {
	EntityID string       `json:"entity_id"`
	OldState *EntityState `json:"old_state"`
	NewState *EntityState `json:"new_state"`
}

// ServiceCall is a Home Assistant service invocation.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
}

func (c ServiceCall) String() string {
	return fmt.Sprintf("%s.%s %v", c.Domain, c.Service, c.Data)
}

// EntityDomain returns the part of an entity id before the dot.
func EntityDomain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}

// ValidEntityID checks the "<domain>.<object_id>" shape.
func ValidEntityID(entityID string) bool {
	return entityIDPattern.MatchString(entityID)
}

// SafeFloat converts attribute or state values to float64. It accepts JSON
// numbers and numeric strings; anything else yields ok=false.
func SafeFloat(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// SafeInt truncates toward zero like SafeFloat followed by int().
func SafeInt(value interface{}) (int, bool) {
	f, ok := SafeFloat(value)
	if !ok {
		return 0, false
	}
	return int(f), true
}
