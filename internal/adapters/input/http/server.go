package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/amimof/huego"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/domain/translator"
	"esphome-humidifier-bridge/internal/ports"
)

type Server struct {
	bridge  ports.BridgePort
	hue     *translator.HueStrategy
	ip      string
	port    int
	metrics http.Handler
	logger  *slog.Logger
}

// NewServer builds the HTTP surface. metrics may be nil.
func NewServer(bridge ports.BridgePort, ip string, port int, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bridge:  bridge,
		hue:     &translator.HueStrategy{},
		ip:      ip,
		port:    port,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	// Hue emulation
	r.HandleFunc("/description.xml", s.handleDescription).Methods(http.MethodGet)
	r.HandleFunc("/api", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/{user}", s.handleFullState).Methods(http.MethodGet)
	r.HandleFunc("/api/{user}/lights", s.handleGetLights).Methods(http.MethodGet)
	r.HandleFunc("/api/{user}/lights/{id}", s.handleGetLight).Methods(http.MethodGet)
	r.HandleFunc("/api/{user}/lights/{id}/state", s.handleSetLightState).Methods(http.MethodPut)

	// Admin API
	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	admin.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPost, http.MethodPut)
	admin.HandleFunc("/ha-entities", s.handleHAEntities).Methods(http.MethodGet)
	admin.HandleFunc("/climate-options", s.handleClimateOptions).Methods(http.MethodGet)
	admin.HandleFunc("/converters", s.handleListConverters).Methods(http.MethodGet)
	admin.HandleFunc("/converters", s.handleCreateConverter).Methods(http.MethodPost)
	admin.HandleFunc("/converters/{id}", s.handleGetConverter).Methods(http.MethodGet)
	admin.HandleFunc("/converters/{id}", s.handleUpdateConverter).Methods(http.MethodPut)
	admin.HandleFunc("/converters/{id}", s.handleDeleteConverter).Methods(http.MethodDelete)
	admin.HandleFunc("/converters/{id}/commands", s.handleCommand).Methods(http.MethodPost)

	return r
}

// Handler wraps the router with panic recovery and access logs.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CombinedLoggingHandler(os.Stdout, s.Router()),
	)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" ?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<specVersion>
<major>1</major>
<minor>0</minor>
</specVersion>
<URLBase>http://%s:%d/</URLBase>
<device>
<deviceType>urn:schemas-upnp-org:device:Basic:1</deviceType>
<friendlyName>Philips hue (%s)</friendlyName>
<manufacturer>Royal Philips Electronics</manufacturer>
<manufacturerURL>http://www.philips.com</manufacturerURL>
<modelDescription>Philips hue Personal Wireless Lighting</modelDescription>
<modelName>Philips hue bridge 2012</modelName>
<modelNumber>929000226503</modelNumber>
<modelURL>http://www.meethue.com</modelURL>
<serialNumber>001788102201</serialNumber>
<UDN>uuid:2f402f80-da50-11e1-9b23-001788102201</UDN>
<presentationURL>admin</presentationURL>
</device>
</root>`, s.ip, s.port, s.ip)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]interface{}{
		{"success": map[string]string{"username": "admin"}},
	})
}

func (s *Server) light(d *model.Device) *huego.Light {
	meta := s.hue.GetMetadata()
	return &huego.Light{
		Name:             d.Name,
		Type:             meta.Type,
		State:            d.State,
		ModelID:          meta.ModelID,
		UniqueID:         d.ConverterID,
		ManufacturerName: meta.ManufacturerName,
	}
}

func (s *Server) lights(r *http.Request) (map[string]*huego.Light, error) {
	devices, err := s.bridge.GetDevices(r.Context())
	if err != nil {
		return nil, err
	}
	lights := make(map[string]*huego.Light, len(devices))
	for _, d := range devices {
		lights[d.ID] = s.light(d)
	}
	return lights, nil
}

func (s *Server) handleFullState(w http.ResponseWriter, r *http.Request) {
	lights, err := s.lights(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lights": lights,
		"groups": make(map[string]interface{}),
		"config": map[string]interface{}{
			"name":       "Philips hue",
			"swversion":  "01003542",
			"apiversion": "1.11.0",
			"mac":        "00:17:88:10:22:01",
			"bridgeid":   "001788FFFE102201",
			"modelid":    "BSB001",
			"ipaddress":  s.ip,
		},
	})
}

func (s *Server) handleGetLights(w http.ResponseWriter, r *http.Request) {
	lights, err := s.lights(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lights)
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	device, err := s.bridge.GetDevice(r.Context(), id)
	if err != nil {
		writeHueError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, s.light(device))
}

func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var stateUpdate map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&stateUpdate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.bridge.UpdateDeviceState(r.Context(), id, stateUpdate); err != nil {
		s.logger.Warn("hue state update failed", "light", id, "error", err)
		writeHueError(w, id, err)
		return
	}

	resp := []map[string]interface{}{}
	for k, v := range stateUpdate {
		resp = append(resp, map[string]interface{}{
			"success": map[string]interface{}{
				fmt.Sprintf("/lights/%s/state/%s", id, k): v,
			},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeHueError answers in the Hue API error format.
func writeHueError(w http.ResponseWriter, id string, err error) {
	status, hueType := http.StatusInternalServerError, 901
	if errors.Is(err, model.ErrDeviceNotFound) {
		status, hueType = http.StatusNotFound, 3
	}
	writeJSON(w, status, []map[string]interface{}{
		{"error": map[string]interface{}{
			"type":        hueType,
			"address":     "/lights/" + id,
			"description": err.Error(),
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrConverterNotFound), errors.Is(err, model.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidEntityID), errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, model.ErrModeNotAvailable), errors.Is(err, model.ErrFanModeUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrDuplicateClimate), errors.Is(err, model.ErrNotEditable):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
