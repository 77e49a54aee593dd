package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"esphome-humidifier-bridge/internal/domain/model"
	"esphome-humidifier-bridge/internal/ports"
)

// Client is the subset of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type Options struct {
	DiscoveryPrefix string
	BaseTopic       string
	QoS             byte
	Timeout         time.Duration
}

func (o Options) withDefaults() Options {
	if o.DiscoveryPrefix == "" {
		o.DiscoveryPrefix = "homeassistant"
	}
	if o.BaseTopic == "" {
		o.BaseTopic = "esphome_humidifier"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// StatusTopic carries the bridge availability (and the last will).
func (o Options) StatusTopic() string {
	return o.BaseTopic + "/status"
}

var errTimeout = errors.New("mqtt operation timed out")

type message struct {
	topic   string
	payload string
}

// Publisher exposes converters as MQTT discovery entities and routes
// the command topics back to a CommandHandler.
type Publisher struct {
	client Client
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	handler    ports.CommandHandler
	converters map[string]string // object id -> converter id
	fans       map[string]Topics // fan entity id -> topics
	retained   map[string][]byte
	disconnect func(quiesce uint)
}

var _ ports.EntityPublisher = (*Publisher)(nil)

func NewPublisher(client Client, opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:     client,
		opts:       opts.withDefaults(),
		logger:     logger,
		converters: make(map[string]string),
		fans:       make(map[string]Topics),
		retained:   make(map[string][]byte),
	}
}

// Bind sets the handler receiving commands published by Home Assistant.
func (p *Publisher) Bind(handler ports.CommandHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

// Subscribe registers the command topics and the Home Assistant birth topic.
func (p *Publisher) Subscribe() error {
	base := p.opts.BaseTopic
	topics := []string{
		base + "/+/set",
		base + "/+/target_humidity/set",
		base + "/+/mode/set",
		base + "/+/fan_mode/set",
		p.opts.DiscoveryPrefix + "/status",
	}
	for _, topic := range topics {
		if err := p.wait(p.client.Subscribe(topic, p.opts.QoS, p.handleMessage)); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// OnConnect marks the bridge online, subscribes and replays retained messages.
func (p *Publisher) OnConnect() {
	if err := p.publish(p.opts.StatusTopic(), []byte(PayloadOnline), true); err != nil {
		p.logger.Error("failed to publish bridge status", "error", err)
	}
	if err := p.Subscribe(); err != nil {
		p.logger.Error("failed to subscribe to command topics", "error", err)
	}
	p.Republish()
}

// Republish sends every cached retained message again, e.g. after Home
// Assistant restarted or the broker lost its retained store.
func (p *Publisher) Republish() {
	p.mu.Lock()
	msgs := make(map[string][]byte, len(p.retained))
	for topic, payload := range p.retained {
		msgs[topic] = payload
	}
	p.mu.Unlock()

	for topic, payload := range msgs {
		if err := p.send(topic, payload, true); err != nil {
			p.logger.Warn("republish failed", "topic", topic, "error", err)
		}
	}
}

// Close publishes the offline status and disconnects when the publisher
// owns the connection.
func (p *Publisher) Close() {
	if err := p.send(p.opts.StatusTopic(), []byte(PayloadOffline), true); err != nil {
		p.logger.Warn("failed to publish offline status", "error", err)
	}
	if p.disconnect != nil {
		p.disconnect(250)
	}
}

func (p *Publisher) AnnounceHumidifier(ctx context.Context, cfg *model.ConverterConfig, h model.HumidifierState) error {
	t := NewTopics(p.opts.DiscoveryPrefix, p.opts.BaseTopic, cfg.ClimateEntity)
	p.mu.Lock()
	p.converters[t.Object] = cfg.ID()
	p.mu.Unlock()

	payload, err := json.Marshal(BuildHumidifierDiscovery(cfg, h, t, p.opts.StatusTopic()))
	if err != nil {
		return fmt.Errorf("encode humidifier discovery: %w", err)
	}
	return p.publish(t.HumidifierConfig, payload, true)
}

func (p *Publisher) PublishHumidifier(ctx context.Context, h model.HumidifierState) error {
	t := NewTopics(p.opts.DiscoveryPrefix, p.opts.BaseTopic, h.SourceClimateEntity)

	availability := PayloadOffline
	if h.Available {
		availability = PayloadOnline
	}
	state := PayloadOff
	if h.IsOn {
		state = PayloadOn
	}
	attrs, err := json.Marshal(h.ExtraAttributes())
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	msgs := []message{
		{t.State, state},
		{t.Attributes, string(attrs)},
	}
	if h.TargetHumidity != nil {
		msgs = append(msgs, message{t.TargetHumidity, strconv.Itoa(*h.TargetHumidity)})
	}
	if h.CurrentHumidity != nil {
		msgs = append(msgs, message{t.CurrentHumidity, strconv.FormatFloat(*h.CurrentHumidity, 'f', -1, 64)})
	}
	if h.Mode != "" {
		msgs = append(msgs, message{t.Mode, h.Mode})
	}
	// Availability goes last so Home Assistant never shows stale values as live.
	msgs = append(msgs, message{t.Availability, availability})

	for _, m := range msgs {
		if err := p.publish(m.topic, []byte(m.payload), true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) AnnounceFanMode(ctx context.Context, cfg *model.ConverterConfig, f model.FanModeState) error {
	t := NewTopics(p.opts.DiscoveryPrefix, p.opts.BaseTopic, cfg.ClimateEntity)
	p.mu.Lock()
	p.converters[t.Object] = cfg.ID()
	p.fans[f.ID] = t
	p.mu.Unlock()

	payload, err := json.Marshal(BuildSelectDiscovery(cfg, f, t, p.opts.StatusTopic()))
	if err != nil {
		return fmt.Errorf("encode select discovery: %w", err)
	}
	return p.publish(t.FanModeConfig, payload, true)
}

func (p *Publisher) PublishFanMode(ctx context.Context, f model.FanModeState) error {
	p.mu.Lock()
	t, ok := p.fans[f.ID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("fan mode select %s was not announced", f.ID)
	}

	if f.CurrentOption != "" {
		if err := p.publish(t.FanMode, []byte(f.CurrentOption), true); err != nil {
			return err
		}
	}
	availability := PayloadOffline
	if f.Available {
		availability = PayloadOnline
	}
	return p.publish(t.FanModeAvailability, []byte(availability), true)
}

// Remove clears the retained discovery configs so Home Assistant drops
// both entities, then clears every retained topic under the entity root.
func (p *Publisher) Remove(ctx context.Context, cfg *model.ConverterConfig) error {
	t := NewTopics(p.opts.DiscoveryPrefix, p.opts.BaseTopic, cfg.ClimateEntity)
	root := p.opts.BaseTopic + "/" + t.Object + "/"

	topics := []string{
		t.HumidifierConfig, t.FanModeConfig,
		t.State, t.TargetHumidity, t.CurrentHumidity, t.Mode, t.Attributes, t.FanMode,
		t.Availability, t.FanModeAvailability,
	}
	known := make(map[string]bool, len(topics))
	for _, topic := range topics {
		known[topic] = true
	}

	p.mu.Lock()
	delete(p.converters, t.Object)
	delete(p.fans, cfg.FanModeID())
	for topic := range p.retained {
		if strings.HasPrefix(topic, root) && !known[topic] {
			topics = append(topics, topic)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, topic := range topics {
		if err := p.publish(topic, nil, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := strings.TrimSpace(string(msg.Payload()))

	if topic == p.opts.DiscoveryPrefix+"/status" {
		if payload == PayloadOnline {
			p.logger.Info("Home Assistant came online, republishing entities")
			p.Republish()
		}
		return
	}

	object, command, ok := p.parseCommandTopic(topic)
	if !ok {
		return
	}
	p.mu.Lock()
	handler := p.handler
	converterID := p.converters[object]
	p.mu.Unlock()
	if handler == nil || converterID == "" {
		p.logger.Debug("ignoring command for unknown entity", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	var err error
	switch command {
	case "set":
		switch strings.ToUpper(payload) {
		case PayloadOn:
			err = handler.TurnOn(ctx, converterID)
		case PayloadOff:
			err = handler.TurnOff(ctx, converterID)
		default:
			err = fmt.Errorf("unknown state payload %q", payload)
		}
	case "target_humidity/set":
		v, perr := strconv.ParseFloat(payload, 64)
		if perr != nil {
			err = fmt.Errorf("invalid target humidity %q", payload)
			break
		}
		err = handler.SetHumidity(ctx, converterID, int(math.Round(v)))
	case "mode/set":
		err = handler.SetMode(ctx, converterID, payload)
	case "fan_mode/set":
		err = handler.SelectFanOption(ctx, converterID, payload)
	}
	if err != nil {
		p.logger.Warn("command failed", "converter", converterID, "command", command, "payload", payload, "error", err)
	}
}

// parseCommandTopic splits <base>/<object>/<command...>.
func (p *Publisher) parseCommandTopic(topic string) (string, string, bool) {
	rest, ok := strings.CutPrefix(topic, p.opts.BaseTopic+"/")
	if !ok {
		return "", "", false
	}
	object, command, ok := strings.Cut(rest, "/")
	if !ok || object == "" {
		return "", "", false
	}
	switch command {
	case "set", "target_humidity/set", "mode/set", "fan_mode/set":
		return object, command, true
	}
	return "", "", false
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	if retained {
		p.mu.Lock()
		if len(payload) == 0 {
			delete(p.retained, topic)
		} else {
			p.retained[topic] = payload
		}
		p.mu.Unlock()
	}
	return p.send(topic, payload, retained)
}

func (p *Publisher) send(topic string, payload []byte, retained bool) error {
	if err := p.wait(p.client.Publish(topic, p.opts.QoS, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) wait(token mqtt.Token) error {
	if !token.WaitTimeout(p.opts.Timeout) {
		return errTimeout
	}
	return token.Error()
}
