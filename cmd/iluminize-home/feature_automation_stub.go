//go:build no_automation

package main

import (
	"log/slog"

	"iluminize-go-home/internal/light"
	"iluminize-go-home/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *light.Manager, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
