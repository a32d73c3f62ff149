// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package log

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	root hclog.Logger
	once sync.Once
)

// Init configures the process-wide root logger. Subsequent calls are
// no-ops; packages derive their own named loggers from it.
func Init(level string, json bool) {
	once.Do(func() {
		root = hclog.New(&hclog.LoggerOptions{
			Name:       "zenproc",
			Level:      hclog.LevelFromString(level),
			JSONFormat: json,
		})
		hclog.SetDefault(root)
	})
}

func Logger() hclog.Logger {
	if root == nil {
		return hclog.Default()
	}
	return root
}

func Error(format string, args ...any) {
	Logger().Error(fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...any) {
	Logger().Info(fmt.Sprintf(format, args...))
}

func Debugf(ctx context.Context, format string, args ...any) {
	Logger().Debug(fmt.Sprintf(format, args...))
}
