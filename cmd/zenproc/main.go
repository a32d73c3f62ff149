// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pbinitiative/zenproc/internal/config"
	"github.com/pbinitiative/zenproc/internal/log"
	"github.com/pbinitiative/zenproc/pkg/proc"
	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/storage/inmemory"
)

func main() {
	conf := config.InitConfig()
	log.Init(conf.Log.Level, conf.Log.Json)

	appContext, ctxCancel := context.WithCancel(context.Background())

	store := inmemory.NewStorage()
	options := []proc.EngineOption{
		proc.EngineWithStorage(store),
		proc.EngineWithLogger(log.Logger().Named("engine")),
	}
	if conf.Name != "" {
		options = append(options, proc.EngineWithName(conf.Name))
	}
	if conf.Engine.TimerPollSeconds > 0 {
		options = append(options, proc.EngineWithTimerPollDelay(time.Duration(conf.Engine.TimerPollSeconds)*time.Second))
	}
	engine := proc.NewEngine(options...)

	if conf.Engine.ProcessDir != "" {
		if err := deployProcessDir(appContext, engine, conf.Engine.ProcessDir); err != nil {
			log.Error("Failed to deploy processes from %s: %s", conf.Engine.ProcessDir, err)
			os.Exit(1)
		}
	}

	engine.Start()

	appStop := make(chan os.Signal, 2)
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-appStop
	log.Infof(appContext, "Received %s. Shutting down", sig.String())

	ctxCancel()
	engine.Stop()
}

// deployProcessDir deploys every YAML process document found in dir.
func deployProcessDir(ctx context.Context, engine *proc.Engine, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		process, err := model.ParseYAML(data)
		if err != nil {
			return err
		}
		definition, err := engine.DeployProcessDefinition(ctx, process)
		if err != nil {
			return err
		}
		log.Infof(ctx, "Deployed process %s version %d from %s", definition.ProcessId, definition.Version, name)
	}
	return nil
}
