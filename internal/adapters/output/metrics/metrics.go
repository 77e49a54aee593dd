package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

// Collector implements ports.Metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	eventsProcessed  *prometheus.CounterVec
	serviceCalls     *prometheus.CounterVec
	convertersLoaded prometheus.Gauge
	available        *prometheus.GaugeVec
	on               *prometheus.GaugeVec
	targetHumidity   *prometheus.GaugeVec
	currentHumidity  *prometheus.GaugeVec
}

var _ ports.Metrics = (*Collector)(nil)

func NewCollector() *Collector {
	labels := []string{"humidifier"}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humidifier_bridge_events_processed_total",
			Help: "State change events applied to a converter, by entity kind.",
		}, []string{"kind"}),
		serviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humidifier_bridge_service_calls_total",
			Help: "Home Assistant service calls issued, by service and result.",
		}, []string{"service", "result"}),
		convertersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidifier_bridge_converters",
			Help: "Number of running converters.",
		}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "humidifier_bridge_available",
			Help: "1 if the source climate entity is available",
		}, labels),
		on: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "humidifier_bridge_on",
			Help: "1 if the dehumidifier is on",
		}, labels),
		targetHumidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "humidifier_bridge_target_humidity_percent",
			Help: "Target humidity (%)",
		}, labels),
		currentHumidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "humidifier_bridge_current_humidity_percent",
			Help: "Current humidity (%)",
		}, labels),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.eventsProcessed,
		c.serviceCalls,
		c.convertersLoaded,
		c.available,
		c.on,
		c.targetHumidity,
		c.currentHumidity,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) EventProcessed(kind string) {
	c.eventsProcessed.WithLabelValues(kind).Inc()
}

func (c *Collector) ServiceCalled(service string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.serviceCalls.WithLabelValues(service, result).Inc()
}

func (c *Collector) HumidifierUpdated(h model.HumidifierState) {
	c.available.WithLabelValues(h.ID).Set(boolValue(h.Available))
	c.on.WithLabelValues(h.ID).Set(boolValue(h.IsOn))
	if h.TargetHumidity != nil {
		c.targetHumidity.WithLabelValues(h.ID).Set(float64(*h.TargetHumidity))
	} else {
		c.targetHumidity.DeleteLabelValues(h.ID)
	}
	if h.CurrentHumidity != nil {
		c.currentHumidity.WithLabelValues(h.ID).Set(*h.CurrentHumidity)
	} else {
		c.currentHumidity.DeleteLabelValues(h.ID)
	}
}

func (c *Collector) ConvertersLoaded(n int) {
	c.convertersLoaded.Set(float64(n))
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
