package mqtt

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type BrokerConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// Dial connects to the broker and returns a publisher owning the
// connection. The last will marks the bridge offline; every (re)connect
// marks it online again and replays the retained entities.
func Dial(broker BrokerConfig, opts Options, logger *slog.Logger) (*Publisher, error) {
	if broker.URL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	clientID := broker.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}

	var p *Publisher
	mo := mqtt.NewClientOptions()
	mo.AddBroker(broker.URL)
	mo.SetUsername(broker.Username)
	mo.SetPassword(broker.Password)
	mo.SetClientID(clientID)
	mo.SetAutoReconnect(true)
	mo.SetConnectRetry(true)
	mo.SetConnectTimeout(10 * time.Second)
	mo.SetOrderMatters(false)
	mo.SetWill(opts.StatusTopic(), PayloadOffline, 1, true)
	mo.OnConnect = func(mqtt.Client) {
		logger.Info("connected to MQTT broker", "broker", broker.URL)
		p.OnConnect()
	}
	mo.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("lost MQTT connection", "error", err)
	}

	client := mqtt.NewClient(mo)
	p = NewPublisher(client, opts, logger)
	p.disconnect = client.Disconnect

	// With ConnectRetry the token only completes once connected; keep
	// going and let the retry loop finish in the background.
	if token := client.Connect(); token.WaitTimeout(opts.Timeout) && token.Error() != nil {
		return nil, token.Error()
	}
	return p, nil
}

func randomClientID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "esphome-humidifier-" + hex.EncodeToString(buf)
}
