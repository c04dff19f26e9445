package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Log       LogConfig              `yaml:"log"`
	Web       WebConfig              `yaml:"web"`
	Selected  SelectedConfig         `yaml:"selected_module"`
	VLLLM     map[string]VLLLMConfig `yaml:"VLLLM"`
	Nutrition NutritionConfig        `yaml:"nutrition"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	MCP       MCPConfig              `yaml:"mcp"`
	Events    EventsConfig           `yaml:"events"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// WebConfig 静态页面与跨域配置
type WebConfig struct {
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type SelectedConfig struct {
	VLLLM string `yaml:"VLLLM"`
}

// VLLLMConfig 视觉模型配置，type 取值 gemini / openai / ollama
type VLLLMConfig struct {
	Type        string         `yaml:"type"`
	ModelName   string         `yaml:"model_name"`
	BaseURL     string         `yaml:"url"`
	APIKey      string         `yaml:"api_key"`
	Temperature float64        `yaml:"temperature"`
	MaxTokens   int            `yaml:"max_tokens"`
	TopP        float64        `yaml:"top_p"`
	Timeout     time.Duration  `yaml:"timeout"`
	UploadFiles bool           `yaml:"upload_files"`
	Security    SecurityConfig `yaml:"security"`
}

type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels"`
	MaxWidth       int      `yaml:"max_width"`
	MaxHeight      int      `yaml:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

// NutritionConfig 识别流水线配置
type NutritionConfig struct {
	ArtifactDir      string `yaml:"artifact_dir"`
	KeepArtifacts    bool   `yaml:"keep_artifacts"`
	PadMissingFields bool   `yaml:"pad_missing_fields"`
	JPEGQuality      int    `yaml:"jpeg_quality"`
	MaxDimension     int    `yaml:"max_dimension"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

type EventsConfig struct {
	Workers int `yaml:"workers"`
}

// SelectedVLLLM 返回当前选中的视觉模型配置
func (c *Config) SelectedVLLLM() (string, VLLLMConfig, bool) {
	name := c.Selected.VLLLM
	cfg, ok := c.VLLLM[name]
	return name, cfg, ok
}
