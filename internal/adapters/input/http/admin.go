package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/domain/service"
)

// entryRequest is a converter config as submitted by a form; modes may be
// given as comma separated text instead of a list.
type entryRequest struct {
	model.ConverterConfig
	ModesText *string `json:"modes_text,omitempty"`
}

func (e *entryRequest) config() *model.ConverterConfig {
	cfg := e.ConverterConfig
	if e.ModesText != nil {
		cfg.Modes = service.ParseModesText(*e.ModesText)
		if cfg.Modes == nil {
			cfg.Modes = []string{}
		}
	}
	return &cfg
}

type humidifierView struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Available       bool                   `json:"available"`
	IsOn            bool                   `json:"is_on"`
	TargetHumidity  *int                   `json:"target_humidity"`
	CurrentHumidity *float64               `json:"current_humidity"`
	Mode            string                 `json:"mode,omitempty"`
	AvailableModes  []string               `json:"available_modes,omitempty"`
	MinHumidity     int                    `json:"min_humidity"`
	MaxHumidity     int                    `json:"max_humidity"`
	Attributes      map[string]interface{} `json:"attributes"`
	FanMode         *fanModeView           `json:"fan_mode,omitempty"`
}

type fanModeView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Available     bool     `json:"available"`
	Options       []string `json:"options"`
	CurrentOption string   `json:"current_option,omitempty"`
}

type commandRequest struct {
	Command  string `json:"command"`
	Humidity *int   `json:"humidity,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Option   string `json:"option,omitempty"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.bridge.GetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.bridge.UpdateConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHAEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.bridge.GetAllEntities(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleClimateOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.bridge.ClimateOptions(r.Context(), r.URL.Query().Get("entity_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleListConverters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.ListConverters(r.Context()))
}

func (s *Server) handleCreateConverter(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := s.bridge.CreateEntry(r.Context(), req.config())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetConverter(w http.ResponseWriter, r *http.Request) {
	h, fan, err := s.bridge.Humidifier(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	view := humidifierView{
		ID:              h.ID,
		Name:            h.Name,
		Available:       h.Available,
		IsOn:            h.IsOn,
		TargetHumidity:  h.TargetHumidity,
		CurrentHumidity: h.CurrentHumidity,
		Mode:            h.Mode,
		AvailableModes:  h.AvailableModes,
		MinHumidity:     h.MinHumidity,
		MaxHumidity:     h.MaxHumidity,
		Attributes:      h.ExtraAttributes(),
	}
	if fan != nil {
		view.FanMode = &fanModeView{
			ID:            fan.ID,
			Name:          fan.Name,
			Available:     fan.Available,
			Options:       fan.Options,
			CurrentOption: fan.CurrentOption,
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateConverter(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := s.bridge.UpdateEntry(r.Context(), mux.Vars(r)["id"], req.config())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteConverter(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.DeleteEntry(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var err error
	switch req.Command {
	case "turn_on":
		err = s.bridge.TurnOn(ctx, id)
	case "turn_off":
		err = s.bridge.TurnOff(ctx, id)
	case "set_humidity":
		if req.Humidity == nil {
			http.Error(w, "humidity is required", http.StatusBadRequest)
			return
		}
		err = s.bridge.SetHumidity(ctx, id, *req.Humidity)
	case "set_mode":
		err = s.bridge.SetMode(ctx, id, req.Mode)
	case "select_fan_option":
		err = s.bridge.SelectFanOption(ctx, id, req.Option)
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", req.Command), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
