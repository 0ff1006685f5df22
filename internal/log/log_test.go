// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(NewSlogBase(slog.New(NewTintHandler(buf, true))))
}

func TestLoggerLevelFiltering(t *testing.T) {
	tests := []struct {
		level   Level
		logFunc func(l *Logger)
		want    bool
	}{
		{DebugLevel, func(l *Logger) { l.Debug("hello") }, true},
		{InfoLevel, func(l *Logger) { l.Debug("hello") }, false},
		{InfoLevel, func(l *Logger) { l.Infof("hello %s", "world") }, true},
		{WarnLevel, func(l *Logger) { l.Info("hello") }, false},
		{WarnLevel, func(l *Logger) { l.Warnf("hello %d", 1) }, true},
		{ErrorLevel, func(l *Logger) { l.Warn("hello") }, false},
		{ErrorLevel, func(l *Logger) { l.Error("hello") }, true},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)
		logger.SetLevel(tc.level)
		tc.logFunc(logger)
		require.Equal(t, tc.want, buf.Len() > 0, "level=%s", tc.level)
	}
}

func TestLoggerFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.Infof("re-enqueued %d items from %q", 3, "jobs-processing-x")

	out := buf.String()
	require.Contains(t, out, `re-enqueued 3 items from "jobs-processing-x"`)
	require.Contains(t, out, "INF")
}

func TestSetLevelPanicsOnInvalidLevel(t *testing.T) {
	logger := NewLogger(nil)
	require.Panics(t, func() { logger.SetLevel(Level(42)) })
}
