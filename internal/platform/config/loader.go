package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"foodcal-server-go/internal/platform/errors"
)

const DefaultPath = ".config.yaml"

var supportedProviders = map[string]bool{
	"gemini": true,
	"openai": true,
	"ollama": true,
}

// Loader 读取 YAML 配置文件并叠加环境变量
type Loader struct {
	path      string
	useDotEnv bool
	lookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		path:      DefaultPath,
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithPath 指定配置文件路径，空字符串保持默认
func (l *Loader) WithPath(path string) *Loader {
	if strings.TrimSpace(path) != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithEnv overrides environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
// Path is empty when no configuration file was found.
type Result struct {
	Config *Config
	Path   string
	// DotEnv 为 true 表示已从 .env 文件加载环境变量
	DotEnv bool
}

func (l *Loader) Load() (*Result, error) {
	dotEnv := false
	if l.useDotEnv {
		dotEnv = godotenv.Load() == nil
	}

	cfg := DefaultConfig()
	path := ""

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "解析配置文件失败: "+l.path, err)
		}
		path = l.path
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrap(errors.KindConfig, "config.load", "读取配置文件失败: "+l.path, err)
	}

	fillProviderDefaults(cfg)

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path, DotEnv: dotEnv}, nil
}

// fillProviderDefaults 补齐 YAML 中只写了部分字段的模型配置
func fillProviderDefaults(cfg *Config) {
	sec := defaultSecurity()
	for name, p := range cfg.VLLLM {
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Timeout <= 0 {
			p.Timeout = 60 * time.Second
		}
		if p.Security.MaxFileSize <= 0 {
			p.Security.MaxFileSize = sec.MaxFileSize
		}
		if p.Security.MaxPixels <= 0 {
			p.Security.MaxPixels = sec.MaxPixels
		}
		if p.Security.MaxWidth <= 0 {
			p.Security.MaxWidth = sec.MaxWidth
		}
		if p.Security.MaxHeight <= 0 {
			p.Security.MaxHeight = sec.MaxHeight
		}
		if len(p.Security.AllowedFormats) == 0 {
			p.Security.AllowedFormats = sec.AllowedFormats
		}
		cfg.VLLLM[name] = p
	}
	if cfg.Nutrition.JPEGQuality == 0 {
		cfg.Nutrition.JPEGQuality = 90
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func (l *Loader) applyEnv(cfg *Config) error {
	if key, ok := l.lookupEnv("GEMINI_API_KEY"); ok && key != "" {
		setForType(cfg, "gemini", func(p *VLLLMConfig) { p.APIKey = key })
	}
	if key, ok := l.lookupEnv("OPENAI_API_KEY"); ok && key != "" {
		setForType(cfg, "openai", func(p *VLLLMConfig) {
			if p.APIKey == "" {
				p.APIKey = key
			}
		})
	}
	if model, ok := l.lookupEnv("GEMINI_MODEL"); ok && model != "" {
		setForType(cfg, "gemini", func(p *VLLLMConfig) { p.ModelName = model })
	}
	if level, ok := l.lookupEnv("LOG_LEVEL"); ok && level != "" {
		cfg.Log.Level = level
	}
	if raw, ok := l.lookupEnv("FOODCAL_PORT"); ok && raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", "FOODCAL_PORT 不是合法端口", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func setForType(cfg *Config, providerType string, apply func(*VLLLMConfig)) {
	for name, p := range cfg.VLLLM {
		if p.Type != providerType {
			continue
		}
		apply(&p)
		cfg.VLLLM[name] = p
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("服务端口无效: %d", cfg.Server.Port))
	}

	name, provider, ok := cfg.SelectedVLLLM()
	if !ok {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("未找到选中的视觉模型配置: %q", name))
	}
	if !supportedProviders[provider.Type] {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("不支持的视觉模型类型: %q", provider.Type))
	}
	if provider.ModelName == "" {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("视觉模型 %s 未配置 model_name", name))
	}
	if provider.Type != "ollama" && strings.TrimSpace(provider.APIKey) == "" {
		hint := "api_key"
		if provider.Type == "gemini" {
			hint = "GEMINI_API_KEY"
		}
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("视觉模型 %s 缺少 %s", name, hint))
	}

	if q := cfg.Nutrition.JPEGQuality; q < 1 || q > 100 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("jpeg_quality 必须在 1-100 之间: %d", q))
	}
	if cfg.Nutrition.MaxDimension < 0 {
		return errors.New(errors.KindConfig, "config.validate", "max_dimension 不能为负数")
	}
	if cfg.Events.Workers < 0 {
		return errors.New(errors.KindConfig, "config.validate", "events.workers 不能为负数")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New(errors.KindConfig, "config.validate", "metrics.path 必须以 / 开头")
	}
	return nil
}
