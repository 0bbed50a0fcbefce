package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hearthside-ai/hearthside/internal/config"
)

// Activity states published to the activity sensor.
const (
	StateIdle       = "idle"
	StateThinking   = "thinking"
	StateExecuting  = "executing"
	StateResponding = "responding"
)

// Publisher manages the MQTT connection and publishes the assistant's
// current activity, availability, and discovery config.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		logger:     logger.With("component", "mqtt"),
	}
}

// Start connects to the MQTT broker and blocks until ctx is cancelled.
// On every (re-)connect it publishes discovery configs, a birth
// message, and an idle activity state.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
			p.publishActivity(ctx, cm, "", StateIdle, "")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "hearthside-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("initial connection timed out, retrying in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop publishes an "offline" availability message before closing the
// connection. The context bounds the publish and disconnect.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// Activity publishes the assistant's current state for session. Detail
// carries the tool name while executing. Safe to call before the
// connection is up; the update is dropped with a debug log.
func (p *Publisher) Activity(session, state, detail string) {
	if p.cm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.publishActivity(ctx, p.cm, session, state, detail)
}

func (p *Publisher) baseTopic() string {
	return "hearthside/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) activityTopic() string {
	return p.baseTopic() + "/activity/state"
}

func (p *Publisher) activityAttributesTopic() string {
	return p.baseTopic() + "/activity/attributes"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return "homeassistant/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

func (p *Publisher) sensorDefinitions() []SensorConfig {
	avail := p.availabilityTopic()
	return []SensorConfig{
		{
			Name:                p.device.Name + " Activity",
			UniqueID:            p.instanceID + "_activity",
			StateTopic:          p.activityTopic(),
			JsonAttributesTopic: p.activityAttributesTopic(),
			AvailabilityTopic:   avail,
			Device:              p.device,
			Icon:                "mdi:chat-processing",
		},
		{
			Name:              p.device.Name + " Version",
			UniqueID:          p.instanceID + "_version",
			StateTopic:        p.baseTopic() + "/version/state",
			AvailabilityTopic: avail,
			Device:            p.device,
			Icon:              "mdi:tag",
			EntityCategory:    "diagnostic",
		},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, cfg := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", entitySuffix(cfg.UniqueID, p.instanceID))
		payload, err := json.Marshal(cfg)
		if err != nil {
			p.logger.Error("marshal discovery payload", "entity", cfg.Name, "error", err)
			continue
		}
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("discovery publish failed", "topic", topic, "error", err)
		}
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.baseTopic() + "/version/state",
		Payload: []byte(p.device.SWVersion),
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("version publish failed", "error", err)
	}
}

// entitySuffix strips the instance id prefix from a unique id, leaving
// the per-entity suffix used in the discovery topic.
func entitySuffix(uniqueID, instanceID string) string {
	if len(uniqueID) > len(instanceID)+1 {
		return uniqueID[len(instanceID)+1:]
	}
	return uniqueID
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("availability published", "status", status)
	}
}

func (p *Publisher) publishActivity(ctx context.Context, cm *autopaho.ConnectionManager, session, state, detail string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.activityTopic(),
		Payload: []byte(state),
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("activity publish failed", "error", err)
		return
	}

	attrs, err := json.Marshal(map[string]string{
		"session_id": session,
		"detail":     detail,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.activityAttributesTopic(),
		Payload: attrs,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("activity attributes publish failed", "error", err)
	}
}
