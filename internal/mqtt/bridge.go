//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"iluminize-go-home/internal/iluminize"
	"iluminize-go-home/internal/light"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Lights is the light manager as seen by the bridge.
type Lights interface {
	Bus() *light.EventBus
	Entities() []light.EntityInfo
	TurnOn(ctx context.Context, id string, p light.TurnOnParams) (light.State, error)
	TurnOff(ctx context.Context, id string) (light.State, error)
	Toggle(ctx context.Context, id string) (light.State, error)
}

// Bridge exposes light entities to Home Assistant over MQTT with discovery.
type Bridge struct {
	client pahomqtt.Client
	lights Lights
	prefix string
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	subscribed map[string]string // entity id -> command topic
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(lights Lights, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(lights, cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "iluminize-go-home"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(lights Lights, prefix string, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		lights:     lights,
		prefix:     prefix,
		logger:     logger.With("component", "mqtt"),
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[string]string),
	}
}

// Start subscribes to light events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.lights.Bus().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs after every (re)connect; subscriptions do not survive a
// clean session.
func (b *Bridge) onConnect() {
	b.mu.Lock()
	b.subscribed = make(map[string]string)
	b.mu.Unlock()

	b.publishBridgeState("online")
	for _, info := range b.lights.Entities() {
		b.announce(info)
	}
}

func (b *Bridge) handleEvent(event light.Event) {
	switch event.Type {
	case light.EventEntityAdded:
		if info, ok := event.Data.(light.EntityInfo); ok {
			b.announce(info)
		}
	case light.EventEntityRemoved:
		if info, ok := event.Data.(light.EntityInfo); ok {
			b.unsubscribeCommands(info.EntityID)
		}
	case light.EventStateChanged:
		if ch, ok := event.Data.(light.StateChange); ok {
			b.publishState(ch.EntityID, ch.State)
		}
	case light.EventEntryRemoved:
		if rm, ok := event.Data.(light.EntryRemoval); ok {
			b.removeDiscovery(rm.EntityIDs)
		}
	}
}

// announce publishes discovery and current state of an entity and subscribes
// to its command topic.
func (b *Bridge) announce(info light.EntityInfo) {
	msg := buildDiscovery(info, b.prefix)
	b.publish(msg.Topic, msg.Payload, true)
	b.subscribeCommands(info.EntityID)
	b.publish(stateTopic(b.prefix, info.EntityID), buildState(info.Kind, info.State), true)
	b.logger.Info("published HA discovery", "entity", info.EntityID, "name", info.Device.Name)
}

func (b *Bridge) removeDiscovery(entityIDs []string) {
	for _, msg := range buildRemoveDiscovery(entityIDs) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	for _, id := range entityIDs {
		b.unsubscribeCommands(id)
		b.publish(stateTopic(b.prefix, id), nil, true)
	}
}

func (b *Bridge) publishState(entityID string, st light.State) {
	kind := light.KindWhite
	if st.RGB != nil {
		kind = light.KindRGB
	}
	b.publish(stateTopic(b.prefix, entityID), buildState(kind, st), true)
}

func (b *Bridge) publishBridgeState(state string) {
	topic := b.prefix + "/bridge/state"
	b.publish(topic, []byte(state), true)
}

func (b *Bridge) subscribeCommands(entityID string) {
	topic := commandTopic(b.prefix, entityID)

	b.mu.Lock()
	if _, ok := b.subscribed[entityID]; ok {
		b.mu.Unlock()
		return
	}
	b.subscribed[entityID] = topic
	b.mu.Unlock()

	token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(entityID, msg.Payload())
	})
	b.wait(token, "subscribe", topic)
}

func (b *Bridge) unsubscribeCommands(entityID string) {
	b.mu.Lock()
	topic, ok := b.subscribed[entityID]
	delete(b.subscribed, entityID)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.wait(b.client.Unsubscribe(topic), "unsubscribe", topic)
}

// lightCommand is a JSON-schema command payload.
type lightCommand struct {
	State      string   `json:"state"`
	Brightness *float64 `json:"brightness"`
	Color      *struct {
		R float64 `json:"r"`
		G float64 `json:"g"`
		B float64 `json:"b"`
	} `json:"color"`
}

func (b *Bridge) handleCommand(entityID string, payload []byte) {
	var cmd lightCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid command JSON", "entity", entityID, "err", err)
		return
	}

	var err error
	switch strings.ToUpper(cmd.State) {
	case "OFF":
		_, err = b.lights.TurnOff(b.ctx, entityID)
	case "TOGGLE":
		_, err = b.lights.Toggle(b.ctx, entityID)
	case "ON", "":
		if cmd.State == "" && cmd.Brightness == nil && cmd.Color == nil {
			return
		}
		var p light.TurnOnParams
		if cmd.Brightness != nil {
			v := iluminize.ClampByte(*cmd.Brightness)
			p.Brightness = &v
		}
		if cmd.Color != nil {
			rgb := [3]uint8{
				iluminize.ClampByte(cmd.Color.R),
				iluminize.ClampByte(cmd.Color.G),
				iluminize.ClampByte(cmd.Color.B),
			}
			p.RGB = &rgb
		}
		_, err = b.lights.TurnOn(b.ctx, entityID, p)
	default:
		b.logger.Warn("unknown state in command", "entity", entityID, "state", cmd.State)
		return
	}
	if errors.Is(err, light.ErrEntityNotFound) {
		b.logger.Warn("command for unknown entity", "entity", entityID)
	} else if err != nil {
		b.logger.Warn("command failed", "entity", entityID, "err", err)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	b.wait(b.client.Publish(topic, 1, retained, payload), "publish", topic)
}

// wait reports the outcome of token in the background.
func (b *Bridge) wait(token pahomqtt.Token, op, topic string) {
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT "+op+" timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT "+op+" error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
