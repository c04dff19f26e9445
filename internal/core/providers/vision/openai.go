package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

// OpenAIProvider OpenAI 兼容的多模态接口（也可指向 Gemini 的 OpenAI 兼容端点）
type OpenAIProvider struct {
	config Config
	client *openai.Client
	logger *logging.Logger
}

func newOpenAIProvider(cfg Config, httpClient *http.Client, logger *logging.Logger) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.KindConfig, "vision.openai", "OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = httpClient

	return &OpenAIProvider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.config.ModelName }
func (p *OpenAIProvider) Close() error  { return nil }

func (p *OpenAIProvider) Identify(ctx context.Context, req Request) (string, error) {
	const op = "vision.openai.identify"

	data, err := readImage(req.ImagePath)
	if err != nil {
		return "", err
	}

	message := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mimeTypeOf(req), base64.StdEncoding.EncodeToString(data)),
				},
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.ModelName,
		Messages:    []openai.ChatCompletionMessage{message},
		MaxTokens:   p.config.MaxTokens,
		Temperature: float32(p.config.Temperature),
		TopP:        float32(p.config.TopP),
	})
	if err != nil {
		p.logger.WarnTag("视觉", "OpenAI Vision API 调用失败: model=%s err=%v", p.config.ModelName, err)
		return "", errors.Wrap(errors.KindVision, op, "调用 OpenAI Vision API 失败", err)
	}
	if len(resp.Choices) == 0 {
		return "", emptyAnswer(op)
	}

	text := stripThinkTags(resp.Choices[0].Message.Content)
	if text == "" {
		return "", emptyAnswer(op)
	}
	return text, nil
}
