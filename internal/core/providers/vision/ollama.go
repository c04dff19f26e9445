package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider 本地 Ollama 多模态模型
type OllamaProvider struct {
	config  Config
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

type OllamaRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type OllamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func newOllamaProvider(cfg Config, client *http.Client, logger *logging.Logger) (*OllamaProvider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	logger.DebugTag("视觉", "Ollama 初始化: base_url=%s model=%s", baseURL, cfg.ModelName)
	return &OllamaProvider{
		config:  cfg,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

func (p *OllamaProvider) Name() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.config.ModelName }
func (p *OllamaProvider) Close() error  { return nil }

func (p *OllamaProvider) Identify(ctx context.Context, req Request) (string, error) {
	const op = "vision.ollama.identify"

	data, err := readImage(req.ImagePath)
	if err != nil {
		return "", err
	}

	options := map[string]any{}
	if p.config.Temperature > 0 {
		options["temperature"] = p.config.Temperature
	}
	if p.config.TopP > 0 {
		options["top_p"] = p.config.TopP
	}
	if p.config.MaxTokens > 0 {
		options["num_predict"] = p.config.MaxTokens
	}

	payload, err := sonic.Marshal(OllamaRequest{
		Model: p.config.ModelName,
		Messages: []OllamaMessage{{
			Role:    "user",
			Content: req.Prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(data)},
		}},
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", errors.Wrap(errors.KindVision, op, "序列化请求失败", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(errors.KindVision, op, "创建请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(errors.KindVision, op, "请求 Ollama 失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errors.KindVision, op, "读取响应失败", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.KindVision, op,
			fmt.Sprintf("Ollama 返回状态 %d: %s", resp.StatusCode, truncate(string(body), 256)))
	}

	var parsed OllamaResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(errors.KindVision, op, "解析响应失败", err)
	}
	if parsed.Error != "" {
		return "", errors.New(errors.KindVision, op, parsed.Error)
	}

	text := stripThinkTags(parsed.Message.Content)
	if text == "" {
		return "", emptyAnswer(op)
	}
	return text, nil
}
