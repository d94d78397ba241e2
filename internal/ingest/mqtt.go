package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
)

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       int
	Username  string
	Password  string
	KeepAlive time.Duration
}

// Subscriber feeds telemetry published on an MQTT topic filter into the
// ingest Service. Messages are handled in arrival order.
type Subscriber struct {
	log       *slog.Logger
	cfg       MQTTConfig
	broker    *url.URL
	service   *Service
	connected atomic.Bool
}

func NewSubscriber(log *slog.Logger, cfg MQTTConfig, service *Service) (*Subscriber, error) {
	broker, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}
	if broker.Scheme == "" || broker.Host == "" {
		return nil, fmt.Errorf("invalid broker URL %q", cfg.BrokerURL)
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}

	return &Subscriber{
		log:     log.With(slog.String("component", "mqtt")),
		cfg:     cfg,
		broker:  broker,
		service: service,
	}, nil
}

// Run connects to the broker and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{s.broker},
		KeepAlive:                     uint16(s.cfg.KeepAlive / time.Second),
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		ReconnectBackoff:              autopaho.NewConstantBackoff(5 * time.Second),
		ConnectUsername:               s.cfg.Username,
		ConnectPassword:               []byte(s.cfg.Password),
		OnConnectionUp:                s.onConnectionUp,
		OnConnectError:                s.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					s.handle(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError:      s.onClientError,
			OnServerDisconnect: s.onServerDisconnect,
		},
	}

	s.log.Info("starting mqtt subscriber",
		slog.String("broker", s.cfg.BrokerURL),
		slog.String("client_id", s.cfg.ClientID),
		slog.String("topic", s.cfg.Topic),
	)

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.connected.Store(false)
	if err := cm.Disconnect(shutdownCtx); err != nil {
		s.log.Debug("mqtt disconnect", sl.Err(err))
	}
	s.log.Info("mqtt subscriber stopped")
	return nil
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) {
	if !TopicMatches(s.cfg.Topic, topic) {
		s.log.Debug("message on unhandled topic", slog.String("topic", topic))
		return
	}

	// Malformed payloads are logged by the service and dropped.
	_, _ = s.service.Ingest(ctx, TransportMQTT, payload, map[string]any{"topic": topic})
}

func (s *Subscriber) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	s.connected.Store(true)
	s.log.Info("mqtt connection up")

	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: s.cfg.Topic, QoS: byte(s.cfg.QoS)},
		},
	}); err != nil {
		s.log.Error("failed to subscribe", slog.String("topic", s.cfg.Topic), sl.Err(err))
		return
	}
	s.log.Info("subscribed", slog.String("topic", s.cfg.Topic))
}

func (s *Subscriber) onConnectError(err error) {
	s.connected.Store(false)
	s.log.Warn("mqtt connection failed, retrying", sl.Err(err))
}

func (s *Subscriber) onClientError(err error) {
	s.connected.Store(false)
	s.log.Error("mqtt client error", sl.Err(err))
}

func (s *Subscriber) onServerDisconnect(d *paho.Disconnect) {
	s.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	s.log.Warn("mqtt server requested disconnect",
		slog.Int("reason_code", int(d.ReasonCode)),
		slog.String("reason", reason),
	)
}

// Health reports whether the broker connection is currently up.
func (s *Subscriber) Health(context.Context) error {
	if !s.connected.Load() {
		return errors.New("not connected to broker")
	}
	return nil
}

// TopicMatches reports whether topic matches an MQTT filter with + and # wildcards.
func TopicMatches(filter, topic string) bool {
	if strings.HasPrefix(filter, "$share/") {
		if parts := strings.SplitN(filter, "/", 3); len(parts) == 3 {
			filter = parts[2]
		}
	}

	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}
