//go:build !no_automation

package main

import (
	"log/slog"

	"iluminize-go-home/internal/automation"
	"iluminize-go-home/internal/light"
	"iluminize-go-home/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(lights *light.Manager, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}, nil
	}

	engine := automation.NewEngine(lights, scriptMgr, logger)
	engine.Start()

	return &autoStopper{engine: engine}, []web.ServerOption{web.WithAutomation(engine, scriptMgr)}
}
