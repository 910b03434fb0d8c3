//go:build no_mqtt

package main

import (
	"log/slog"

	"iluminize-go-home/internal/light"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *light.Manager, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
