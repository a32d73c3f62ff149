// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// Name identifies the engine instance in logs and OTEL attributes.
	Name   string `yaml:"name" json:"name" env:"ENGINE_NAME"`
	Log    Log    `yaml:"log" json:"log"`
	Engine Engine `yaml:"engine" json:"engine"`
}

type Log struct {
	Level string `yaml:"level" json:"level" env:"LOG_LEVEL" env-default:"info"`
	Json  bool   `yaml:"json" json:"json" env:"LOG_JSON"`
}

type Engine struct {
	// ProcessDir is scanned at startup for YAML process documents which are
	// deployed before the engine starts accepting work.
	ProcessDir string `yaml:"processDir" json:"processDir" env:"ENGINE_PROCESS_DIR"`
	// TimerPollSeconds sets how often due timers are polled from storage.
	TimerPollSeconds int `yaml:"timerPollSeconds" json:"timerPollSeconds" env:"ENGINE_TIMER_POLL_SECONDS" env-default:"5"`
}

// InitConfig reads conf.yaml from the working directory (or CONFIG_FILE)
// and falls back to environment variables when no file exists.
func InitConfig() Config {
	c := Config{}
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}
