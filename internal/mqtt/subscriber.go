// Package mqtt ingests incubator telemetry published by controllers on an
// MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/services"
)

// Telemetry outcomes, also used as metric labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

const handlerTimeout = 10 * time.Second

// Options configures the broker connection.
type Options struct {
	Broker   string
	Port     int
	ClientID string
	// Topic may contain wildcards; the segment after "incubators/" is taken
	// as the incubator id when the payload omits it.
	Topic string
}

// ReadingHandler receives each valid reading.
type ReadingHandler func(ctx context.Context, r services.Reading) error

type Subscriber struct {
	client    mqtt.Client
	opts      Options
	logger    *log.Logger
	metrics   *observability.Metrics
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handler ReadingHandler
}

func NewSubscriber(opts Options, handler ReadingHandler, metrics *observability.Metrics, logger *log.Logger) *Subscriber {
	s := &Subscriber{
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		handler: handler,
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)

	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)

	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("MQTT connected", "broker", opts.Broker, "port", opts.Port)
		// Clean sessions drop subscriptions on reconnect.
		if err := s.subscribe(c); err != nil {
			logger.Error("MQTT subscribe failed", log.FieldError, err)
		}
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("MQTT connection lost", log.FieldError, err)
	})

	s.client = mqtt.NewClient(co)
	return s
}

// Connect establishes the broker connection. The subscription is made by
// the on-connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	const qos = byte(1)
	token := c.Subscribe(s.opts.Topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.opts.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.opts.Topic, err)
	}
	s.logger.Info("Subscribed to MQTT topic", "topic", s.opts.Topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	r, err := decodeReading(topic, payload)
	if err != nil {
		s.metrics.Telemetry(OutcomeInvalid)
		s.logger.Warn("Invalid telemetry message", "topic", topic, log.FieldError, err)
		return
	}
	if s.handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := s.handler(ctx, r); err != nil {
		s.metrics.Telemetry(OutcomeFailed)
		s.logger.ErrorContext(ctx, "Telemetry handler failed",
			"topic", topic, log.FieldIncubatorID, r.IncubatorID, log.FieldError, err)
		return
	}
	s.metrics.Telemetry(OutcomeAccepted)
	s.logger.DebugContext(ctx, "Processed telemetry message",
		log.FieldIncubatorID, r.IncubatorID, "timestamp", r.Timestamp)
}

// decodeReading parses and validates a telemetry payload.
func decodeReading(topic string, payload []byte) (services.Reading, error) {
	var r services.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return services.Reading{}, fmt.Errorf("parse payload: %w", err)
	}

	fromTopic := incubatorFromTopic(topic)
	switch {
	case r.IncubatorID == "":
		r.IncubatorID = fromTopic
	case fromTopic != "" && r.IncubatorID != fromTopic:
		return services.Reading{}, fmt.Errorf("incubator_id %q does not match topic %q", r.IncubatorID, topic)
	}
	if r.IncubatorID == "" {
		return services.Reading{}, fmt.Errorf("incubator_id is required")
	}
	if r.Temperature == nil && r.Humidity == nil {
		return services.Reading{}, fmt.Errorf("at least one sensor reading (temperature or humidity) is required")
	}
	if r.Humidity != nil && (*r.Humidity < 0 || *r.Humidity > 100) {
		return services.Reading{}, fmt.Errorf("humidity out of range: %v (must be 0-100)", *r.Humidity)
	}
	return r, nil
}

// incubatorFromTopic returns the segment following "incubators" in topic.
func incubatorFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "incubators" {
			return parts[i+1]
		}
	}
	return ""
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.opts.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("MQTT subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
