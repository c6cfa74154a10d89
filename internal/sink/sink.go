// Package sink forwards session snapshots to an MQTT broker.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lowaak/fitness-link/internal/events"
	"github.com/lowaak/fitness-link/internal/session"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Config configures the MQTT connection. An empty Broker disables the sink.
type Config struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
	Retain      bool   `mapstructure:"retain"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// PahoPublisher is a Publisher over an eclipse paho client.
type PahoPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewPahoPublisher connects to cfg.Broker.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return &PahoPublisher{client: client, timeout: 5 * time.Second}, nil
}

func (p *PahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to topic %s: timed out after %v", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (p *PahoPublisher) Disconnect() {
	p.client.Disconnect(250)
}

// Sink publishes every snapshot update of a connected peripheral as the
// persisted record JSON on <prefix>/<peripheral-id>/snapshot.
type Sink struct {
	pub    Publisher
	cfg    Config
	logger logrus.FieldLogger
}

func New(pub Publisher, cfg Config, logger logrus.FieldLogger) *Sink {
	if pub == nil {
		panic("Sink: publisher cannot be nil")
	}
	if logger == nil {
		panic("Sink: logger cannot be nil")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "fitness-link"
	}
	return &Sink{pub: pub, cfg: cfg, logger: logger}
}

// Topic returns the snapshot topic of a peripheral. MQTT wildcard and level
// separators in the id are replaced.
func (s *Sink) Topic(peripheralID string) string {
	id := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(peripheralID)
	return fmt.Sprintf("%s/%s/snapshot", strings.TrimSuffix(s.cfg.TopicPrefix, "/"), id)
}

// Handle publishes one update. Updates without a peripheral (the restored
// startup snapshot) are skipped.
func (s *Sink) Handle(u session.Update) error {
	if u.PeripheralID == "" {
		return nil
	}
	payload, err := session.EncodeSnapshot(u.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.pub.Publish(s.Topic(u.PeripheralID), s.cfg.QoS, s.cfg.Retain, payload)
}

// Run publishes updates from feed until ctx is done, then disconnects the
// publisher. Publishing happens on this goroutine so slow brokers never
// stall notification handling; updates arriving while the buffer is full
// are dropped.
func (s *Sink) Run(ctx context.Context, feed *events.Feed[session.Update]) {
	updates := make(chan session.Update, 64)
	unregister := feed.ListenChan(updates)
	defer unregister()
	defer s.pub.Disconnect()

	s.logger.Infof("Sink: publishing snapshots under %s/", s.cfg.TopicPrefix)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if err := s.Handle(u); err != nil {
				s.logger.WithError(err).Warn("Sink: publish failed")
			}
		}
	}
}
