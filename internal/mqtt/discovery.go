//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"iluminize-go-home/internal/light"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/iluminize_192_168_1_50_8899/rgb/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a JSON-schema light discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id,omitempty"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Schema              string   `json:"schema"`
	Brightness          bool     `json:"brightness"`
	SupportedColorModes []string `json:"supported_color_modes"`
	Device              haDevice `json:"device"`
}

// haState is the JSON-schema state payload of a light.
type haState struct {
	State      string   `json:"state"`
	Brightness uint8    `json:"brightness"`
	ColorMode  string   `json:"color_mode"`
	Color      *haColor `json:"color,omitempty"`
}

type haColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// deviceIdentifier returns the unique identifier for the HA device registry.
func deviceIdentifier(dev light.DeviceInfo) string {
	return "iluminize_" + dev.Identifier
}

// splitEntityID splits an entity id into the discovery node id and object id,
// e.g. "iluminize_10_0_0_1_8899_rgb" into "iluminize_10_0_0_1_8899" and "rgb".
func splitEntityID(entityID string) (node, object string) {
	i := strings.LastIndexByte(entityID, '_')
	if i < 0 {
		return entityID, "light"
	}
	return entityID[:i], entityID[i+1:]
}

func discoveryTopic(entityID string) string {
	node, obj := splitEntityID(entityID)
	return fmt.Sprintf("homeassistant/light/%s/%s/config", node, obj)
}

func stateTopic(prefix, entityID string) string {
	return prefix + "/" + entityID
}

func commandTopic(prefix, entityID string) string {
	return prefix + "/" + entityID + "/set"
}

// buildDiscovery generates the HA discovery message for a light entity.
func buildDiscovery(info light.EntityInfo, prefix string) discoveryMsg {
	modes := make([]string, 0, 1)
	if info.Kind == light.KindRGB {
		modes = append(modes, "rgb")
	} else {
		modes = append(modes, "brightness")
	}

	payload := haDiscovery{
		Name:                info.Name,
		UniqueID:            info.EntityID,
		ObjectID:            info.EntityID,
		StateTopic:          stateTopic(prefix, info.EntityID),
		CommandTopic:        commandTopic(prefix, info.EntityID),
		AvailabilityTopic:   prefix + "/bridge/state",
		Schema:              "json",
		Brightness:          true,
		SupportedColorModes: modes,
		Device: haDevice{
			Identifiers:  []string{deviceIdentifier(info.Device)},
			Manufacturer: info.Device.Manufacturer,
			Model:        info.Device.Model,
			Name:         info.Device.Name,
		},
	}
	return discoveryMsg{Topic: discoveryTopic(info.EntityID), Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty retained messages that remove the
// given entities from HA.
func buildRemoveDiscovery(entityIDs []string) []discoveryMsg {
	msgs := make([]discoveryMsg, 0, len(entityIDs))
	for _, id := range entityIDs {
		msgs = append(msgs, discoveryMsg{
			Topic:   discoveryTopic(id),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}

// buildState converts an entity state to its JSON-schema payload.
func buildState(kind light.Kind, st light.State) []byte {
	p := haState{State: "OFF", Brightness: st.Brightness, ColorMode: "brightness"}
	if st.On {
		p.State = "ON"
	}
	if kind == light.KindRGB && st.RGB != nil {
		p.ColorMode = "rgb"
		p.Color = &haColor{R: int(st.RGB[0]), G: int(st.RGB[1]), B: int(st.RGB[2])}
	}
	return mustJSON(p)
}
