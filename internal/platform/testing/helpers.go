package testing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"foodcal-server-go/internal/platform/config"
	"foodcal-server-go/internal/platform/logging"
)

// SetupTestConfig 返回使用本地 Ollama、临时目录的默认配置，不需要任何 API key
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Log.File = "test.log"
	cfg.Selected.VLLLM = "OllamaVLLM"
	cfg.Nutrition.ArtifactDir = filepath.Join(dir, "artifacts")
	cfg.Events.Workers = 0
	return cfg
}

// WriteTestConfig 把 SetupTestConfig 对应的 YAML 写入临时文件，extra 追加在末尾
func WriteTestConfig(t *testing.T, extra string) string {
	t.Helper()
	cfg := SetupTestConfig(t)

	content := "server:\n  ip: " + cfg.Server.IP + "\n  port: 18000\n" +
		"log:\n  log_level: debug\n  log_dir: " + cfg.Log.Dir + "\n  log_file: " + cfg.Log.File + "\n" +
		"selected_module:\n  VLLLM: " + cfg.Selected.VLLLM + "\n" +
		"nutrition:\n  artifact_dir: " + cfg.Nutrition.ArtifactDir + "\n" +
		"events:\n  workers: 0\n" + extra

	path := filepath.Join(filepath.Dir(cfg.Log.Dir), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// 避免宿主环境变量干扰
	t.Setenv("FOODCAL_PORT", "")
	t.Setenv("LOG_LEVEL", "")
	return path
}

// SetupTestLogger 控制台静默、写入临时目录的日志记录器
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

// SamplePNG 生成一张带半透明像素的小尺寸 PNG
func SamplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: uint8(x * 10), B: 40, A: 180})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// SampleImageBase64 SamplePNG 的 base64 形式，即 /predict 请求体中的 image
func SampleImageBase64(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(SamplePNG(t))
}
