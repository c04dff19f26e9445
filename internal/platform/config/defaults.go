package config

import "time"

func defaultSecurity() SecurityConfig {
	return SecurityConfig{
		MaxFileSize:    10 * 1024 * 1024,
		MaxPixels:      4096 * 4096,
		MaxWidth:       4096,
		MaxHeight:      4096,
		AllowedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			CORSOrigins: []string{"*"},
		},
		Selected: SelectedConfig{
			VLLLM: "GeminiVLLM",
		},
		VLLLM: map[string]VLLLMConfig{
			"GeminiVLLM": {
				Type:        "gemini",
				ModelName:   "gemini-1.5-flash",
				BaseURL:     "https://generativelanguage.googleapis.com",
				Timeout:     60 * time.Second,
				UploadFiles: true,
				Security:    defaultSecurity(),
			},
			"OpenAIVLLM": {
				Type:      "openai",
				ModelName: "gpt-4o-mini",
				BaseURL:   "https://api.openai.com/v1",
				MaxTokens: 1024,
				Timeout:   60 * time.Second,
				Security:  defaultSecurity(),
			},
			"OllamaVLLM": {
				Type:        "ollama",
				ModelName:   "qwen2.5vl",
				BaseURL:     "http://localhost:11434",
				Temperature: 0.2,
				Timeout:     120 * time.Second,
				Security:    defaultSecurity(),
			},
		},
		Nutrition: NutritionConfig{
			ArtifactDir: "data/tmp",
			JPEGQuality: 90,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MCP: MCPConfig{
			Enabled: false,
		},
		Events: EventsConfig{
			Workers: 2,
		},
	}
}
