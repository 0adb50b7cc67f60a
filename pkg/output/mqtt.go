package output

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttDisconnectWait = 250 // milliseconds
)

var (
	ErrMQTTConnect = errors.New("mqtt connect failed")
	ErrMQTTTopic   = errors.New("mqtt topic must not be empty")
	ErrMQTTQoS     = errors.New("mqtt qos must be 0, 1 or 2")
)

// MQTTConfig describes the broker and topic records are published to.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id" json:"client_id"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Validate checks the parts of the config that paho would not reject itself.
func (c MQTTConfig) Validate() error {
	if c.Topic == "" {
		return ErrMQTTTopic
	}
	if c.QoS > 2 {
		return ErrMQTTQoS
	}
	return nil
}

func buildMQTTOptions(cfg MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "fieldgate"
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	return opts
}

// MQTTOutput publishes every record as one message on a fixed topic.
type MQTTOutput struct {
	client pahomqtt.Client
	topic  string
	qos    byte
}

// NewMQTTOutput connects to the broker.
func NewMQTTOutput(cfg MQTTConfig) (*MQTTOutput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := pahomqtt.NewClient(buildMQTTOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}
	return newMQTTOutput(client, cfg.Topic, cfg.QoS), nil
}

func newMQTTOutput(client pahomqtt.Client, topic string, qos byte) *MQTTOutput {
	return &MQTTOutput{client: client, topic: topic, qos: qos}
}

func (m *MQTTOutput) WriteBatch(entries [][]byte) error {
	tokens := make([]pahomqtt.Token, 0, len(entries))
	for _, e := range entries {
		payload := bytes.TrimRight(e, "\r\n")
		tokens = append(tokens, m.client.Publish(m.topic, m.qos, false, payload))
	}
	for _, t := range tokens {
		if !t.WaitTimeout(mqttPublishTimeout) {
			return fmt.Errorf("mqtt publish to %s: timeout after %v", m.topic, mqttPublishTimeout)
		}
		if err := t.Error(); err != nil {
			return fmt.Errorf("mqtt publish to %s: %w", m.topic, err)
		}
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTOutput) Close() error {
	m.client.Disconnect(mqttDisconnectWait)
	return nil
}
