package vision

import (
	"context"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"foodcal-server-go/internal/platform/config"
	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

// Request 一次识别调用：本地图片路径 + 固定提示词
type Request struct {
	ImagePath string
	MIMEType  string
	Prompt    string
}

// Provider 视觉模型客户端，返回模型的原始文本回答
type Provider interface {
	Identify(ctx context.Context, req Request) (string, error)
	Name() string
	Model() string
	Close() error
}

// Config 视觉模型配置
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Timeout     time.Duration
	UploadFiles bool
}

// FromConfig converts the YAML-level provider section.
func FromConfig(c config.VLLLMConfig) Config {
	return Config{
		Type:        c.Type,
		ModelName:   c.ModelName,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		TopP:        c.TopP,
		Timeout:     c.Timeout,
		UploadFiles: c.UploadFiles,
	}
}

// NewProvider 根据 Type 创建对应的视觉模型客户端
func NewProvider(cfg Config, logger *logging.Logger) (Provider, error) {
	if cfg.ModelName == "" {
		return nil, errors.New(errors.KindConfig, "vision.new", "model_name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}

	var (
		provider Provider
		err      error
	)
	switch strings.ToLower(cfg.Type) {
	case "gemini":
		provider, err = newGeminiProvider(cfg, client, logger)
	case "openai":
		provider, err = newOpenAIProvider(cfg, client, logger)
	case "ollama":
		provider, err = newOllamaProvider(cfg, client, logger)
	default:
		return nil, errors.New(errors.KindConfig, "vision.new", "不支持的视觉模型类型: "+cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.InfoTag("视觉", "视觉模型初始化成功: type=%s model=%s", cfg.Type, cfg.ModelName)
	return provider, nil
}

func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, "vision.read_image", "读取图片失败", err)
	}
	return data, nil
}

func mimeTypeOf(req Request) string {
	if req.MIMEType != "" {
		return req.MIMEType
	}
	return "image/jpeg"
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags drops reasoning blocks emitted by thinking models.
// An unterminated <think> discards everything after it.
func stripThinkTags(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	if idx := strings.Index(text, "<think>"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "</think>", ""))
}

func emptyAnswer(op string) error {
	return errors.New(errors.KindVision, op, "模型返回空内容")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
