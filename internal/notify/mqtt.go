package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string // base topic, e.g. "adhan"
	QoS       byte
	Retain    bool
}

// MQTTClient is the part of mqtt.Client the publisher uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes messages to "<topic>/<kind>" so home automation
// (smart speakers, lights) can react to prayer times.
type MQTTPublisher struct {
	client MQTTClient
	topic  string
	qos    byte
	retain bool
}

// NewMQTTPublisher wraps an existing client.
func NewMQTTPublisher(client MQTTClient, topic string, qos byte, retain bool) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  strings.TrimRight(topic, "/"),
		qos:    qos,
		retain: retain,
	}
}

// ConnectMQTT dials the broker and returns a publisher. The client
// reconnects on its own after the first successful connect.
func ConnectMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	logger := log.With().Str("component", "notify").Str("channel", "mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "adhan"
	}
	return NewMQTTPublisher(client, topic, cfg.QoS, cfg.Retain), nil
}

// Name implements Channel.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic a message of kind is published on.
func (p *MQTTPublisher) Topic(kind string) string {
	return p.topic + "/" + kind
}

// Send implements Channel.
func (p *MQTTPublisher) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}

	token := p.client.Publish(p.Topic(msg.Kind), p.qos, p.retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", p.Topic(msg.Kind), ctx.Err())
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client == nil {
		return errors.New("mqtt publisher not connected")
	}
	p.client.Disconnect(250)
	return nil
}
