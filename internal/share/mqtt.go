package share

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig points at the broker a shared reading is published to.
type MQTTConfig struct {
	Broker   string // e.g. "tcp://localhost:1883"
	Topic    string
	ClientID string
}

// MQTT publishes shared text to a broker topic.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("share: mqtt broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "speedo/share"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "speedo-share"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("share: mqtt connect: %w", token.Error())
	}
	log.Printf("share: mqtt target broker=%s topic=%s", cfg.Broker, cfg.Topic)
	return &MQTT{cfg: cfg, client: client}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Share(ctx context.Context, text string) error {
	token := m.client.Publish(m.cfg.Topic, 1, false, text)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}
