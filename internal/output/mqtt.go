package output

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTSink publishes a DetectionEvent per frame to a broker topic
type MQTTSink struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTSink creates a publisher; call Connect before use
func NewMQTTSink(cfg config.MQTTConfig) *MQTTSink {
	if cfg.ClientID == "" {
		cfg.ClientID = "camwatch-" + uuid.New().String()[:8]
	}
	return &MQTTSink{cfg: cfg}
}

// BrokerURL adds the tcp:// scheme when the broker is a bare host:port
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection; paho reconnects on its own after
func (s *MQTTSink) Connect(ctx context.Context) error {
	log := logger.WithComponent("output")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		log.Info().Str("broker", s.cfg.Broker).Str("client_id", s.cfg.ClientID).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		log.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("MQTT connection lost, will auto-reconnect")
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.setConnected(true)
	return nil
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Name returns the sink name
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Publish sends one event and waits for the broker token
func (s *MQTTSink) Publish(ctx context.Context, msg Message) error {
	if s.client == nil || !s.isConnected() {
		s.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := NewDetectionEvent(msg).JSON()
	if err != nil {
		s.countError()
		return fmt.Errorf("failed to marshal detection event: %w", err)
	}

	token := s.client.Publish(s.cfg.Topic, byte(s.cfg.QoS), false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		s.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		s.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Stats returns published and failed counts
func (s *MQTTSink) Stats() (published, errors uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published, s.errors
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.setConnected(false)
	return nil
}
