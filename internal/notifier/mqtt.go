package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
)

var newMQTTClient = mqtt.NewClient

type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration
}

// MQTTSink publishes completion events as JSON for hardware bridges. The
// connection is opened on first delivery and kept for the session.
type MQTTSink struct {
	opts MQTTOptions

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTSink(opts MQTTOptions) *MQTTSink {
	if opts.Topic == "" {
		opts.Topic = constants.DefaultMQTTTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = constants.DefaultMQTTClientID
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = constants.SinkTimeout
	}
	return &MQTTSink{opts: opts}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) connect() (mqtt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.opts.Broker)
	opts.SetClientID(s.opts.ClientID)
	if s.opts.Username != "" {
		opts.SetUsername(s.opts.Username)
		opts.SetPassword(s.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(s.opts.ConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Debug("MQTT connection established", "broker", s.opts.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", s.opts.Broker, "error", err)
	})

	client := newMQTTClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", s.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	s.client = client
	return client, nil
}

func (s *MQTTSink) Deliver(ctx context.Context, ev models.CompletionEvent) error {
	client, err := s.connect()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	token := client.Publish(s.opts.Topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", s.opts.Topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	return nil
}
