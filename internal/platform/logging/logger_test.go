package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T, level string) (*Logger, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	console := &bytes.Buffer{}
	logger, err := New(Config{Level: level, Dir: dir, Filename: "test.log", Console: console})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, filepath.Join(dir, "test.log"), console
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNew_ConsoleOnly(t *testing.T) {
	console := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Console: console})
	require.NoError(t, err)

	logger.Info("ready")
	assert.Contains(t, console.String(), "ready")
	assert.NoError(t, logger.Close())
}

func TestLogger_WritesFileAndConsole(t *testing.T) {
	logger, path, console := newFileLogger(t, "info")

	logger.Info("server started")

	assert.Contains(t, readLog(t, path), `"msg":"server started"`)
	assert.Contains(t, console.String(), "server started")
}

func TestLogger_FormatPlaceholders(t *testing.T) {
	logger, path, _ := newFileLogger(t, "debug")

	logger.Info("listening on %s:%d", "0.0.0.0", 8000)

	assert.Contains(t, readLog(t, path), "listening on 0.0.0.0:8000")
}

func TestLogger_StructuredFields(t *testing.T) {
	logger, path, _ := newFileLogger(t, "debug")

	logger.Info("prediction", map[string]any{"stage": "extract", "fallback": true})

	content := readLog(t, path)
	assert.Contains(t, content, `"fallback":true`)
	assert.Contains(t, content, `"stage":"extract"`)
}

func TestLogger_Tags(t *testing.T) {
	logger, path, console := newFileLogger(t, "debug")

	logger.InfoTag("视觉", "调用模型 %s", "gemini-1.5-flash")
	logger.WarnTag("营养", "回退记录")
	logger.DebugTag("HTTP", "debug line")

	content := readLog(t, path)
	assert.Contains(t, content, "[视觉] 调用模型 gemini-1.5-flash")
	assert.Contains(t, content, "[营养] 回退记录")
	assert.Contains(t, content, "[HTTP] debug line")
	assert.Contains(t, console.String(), tagColors["视觉"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, path, _ := newFileLogger(t, "ERROR")

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("hidden warn")
	logger.Error("visible error")

	content := readLog(t, path)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "visible error")
}

func TestLogger_SetLevel(t *testing.T) {
	logger, path, _ := newFileLogger(t, "info")

	logger.Debug("before")
	logger.SetLevel("debug")
	logger.Debug("after")

	content := readLog(t, path)
	assert.NotContains(t, content, "before")
	assert.Contains(t, content, "after")
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.InfoTag("引导", "noop")
		logger.Error("noop")
		logger.SetLevel("debug")
		_ = logger.Slog()
		_ = logger.Close()
	})
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	logger, path, _ := newFileLogger(t, "debug")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			logger.Info("concurrent message number", idx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, strings.Count(readLog(t, path), "concurrent message number"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), "input: %s", tt.input)
	}
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[引导] 服务已启动", FormatLog("引导", "服务已启动"))
	assert.Equal(t, "[HTTP] already tagged", FormatLog("引导", "[HTTP] already tagged"))
	assert.Equal(t, "plain", FormatLog("", " plain "))
}

func TestConsoleHandler_Enabled(t *testing.T) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	handler := &consoleHandler{writer: &bytes.Buffer{}, level: level, mu: &sync.Mutex{}}

	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
}

func TestConsoleHandler_WithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Console: buf})
	require.NoError(t, err)

	logger.Slog().With("request_id", "abc").Info("handled")

	assert.Contains(t, buf.String(), "request_id=abc")
	assert.Contains(t, buf.String(), "handled")
}
