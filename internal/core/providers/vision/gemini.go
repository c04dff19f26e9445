package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider 调用 Gemini REST API：先经 Files API 上传图片，再 generateContent
type GeminiProvider struct {
	config  Config
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	FileData   *geminiFileData   `json:"file_data,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiFileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func newGeminiProvider(cfg Config, client *http.Client, logger *logging.Logger) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.KindConfig, "vision.gemini", "Gemini API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiProvider{
		config:  cfg,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.config.ModelName }
func (p *GeminiProvider) Close() error  { return nil }

// Identify uploads the image (or inlines it) and asks the model with the prompt first.
func (p *GeminiProvider) Identify(ctx context.Context, req Request) (string, error) {
	data, err := readImage(req.ImagePath)
	if err != nil {
		return "", err
	}
	mimeType := mimeTypeOf(req)

	imagePart := geminiPart{InlineData: &geminiInlineData{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}

	if p.config.UploadFiles {
		file, err := p.uploadFile(ctx, filepath.Base(req.ImagePath), mimeType, data)
		if err != nil {
			return "", err
		}
		p.logger.DebugTag("视觉", "图片已上传: %s", file.URI)
		defer p.deleteFile(file.Name)

		if file.MIMEType != "" {
			mimeType = file.MIMEType
		}
		imagePart = geminiPart{FileData: &geminiFileData{MIMEType: mimeType, FileURI: file.URI}}
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}, imagePart},
		}},
		GenerationConfig: p.generationConfig(),
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", errors.Wrap(errors.KindVision, "vision.gemini.generate", "序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.config.ModelName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(errors.KindVision, "vision.gemini.generate", "创建请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	respBody, err := p.do(httpReq, "vision.gemini.generate")
	if err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := sonic.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(errors.KindVision, "vision.gemini.generate", "解析响应失败", err)
	}
	if reason := parsed.PromptFeedback.BlockReason; reason != "" {
		return "", errors.New(errors.KindVision, "vision.gemini.generate", "请求被拦截: "+reason)
	}
	if len(parsed.Candidates) == 0 {
		return "", emptyAnswer("vision.gemini.generate")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := stripThinkTags(sb.String())
	if text == "" {
		return "", emptyAnswer("vision.gemini.generate")
	}
	return text, nil
}

func (p *GeminiProvider) generationConfig() *geminiGenerationConfig {
	cfg := &geminiGenerationConfig{MaxOutputTokens: p.config.MaxTokens}
	if p.config.Temperature > 0 {
		t := p.config.Temperature
		cfg.Temperature = &t
	}
	if p.config.TopP > 0 {
		tp := p.config.TopP
		cfg.TopP = &tp
	}
	if cfg.Temperature == nil && cfg.TopP == nil && cfg.MaxOutputTokens == 0 {
		return nil
	}
	return cfg
}

// uploadFile runs the two-step resumable upload of the Files API.
func (p *GeminiProvider) uploadFile(ctx context.Context, displayName, mimeType string, data []byte) (*geminiFile, error) {
	const op = "vision.gemini.upload"

	meta, err := sonic.Marshal(map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "序列化上传元数据失败", err)
	}

	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "创建上传请求失败", err)
	}
	startReq.Header.Set("x-goog-api-key", p.config.APIKey)
	startReq.Header.Set("Content-Type", "application/json")
	startReq.Header.Set("X-Goog-Upload-Protocol", "resumable")
	startReq.Header.Set("X-Goog-Upload-Command", "start")
	startReq.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	startReq.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := p.client.Do(startReq)
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "上传初始化失败", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.KindVision, op, fmt.Sprintf("上传初始化返回状态 %d", resp.StatusCode))
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, errors.New(errors.KindVision, op, "响应缺少 X-Goog-Upload-URL")
	}

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "创建上传请求失败", err)
	}
	uploadReq.Header.Set("X-Goog-Upload-Offset", "0")
	uploadReq.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	body, err := p.do(uploadReq, op)
	if err != nil {
		return nil, err
	}

	var uploaded struct {
		File geminiFile `json:"file"`
	}
	if err := sonic.Unmarshal(body, &uploaded); err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "解析上传响应失败", err)
	}
	if uploaded.File.URI == "" {
		return nil, errors.New(errors.KindVision, op, "上传响应缺少文件 URI")
	}
	return &uploaded.File, nil
}

// deleteFile removes the uploaded file; failures are only logged.
func (p *GeminiProvider) deleteFile(name string) {
	if name == "" {
		return
	}
	req, err := http.NewRequest(http.MethodDelete, p.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return
	}
	req.Header.Set("x-goog-api-key", p.config.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.DebugTag("视觉", "删除上传文件失败: %v", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (p *GeminiProvider) do(req *http.Request, op string) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "请求失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, op, "读取响应失败", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiError
		msg := truncate(string(body), 256)
		if sonic.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Status + ": " + apiErr.Error.Message
		}
		return nil, errors.New(errors.KindVision, op, fmt.Sprintf("Gemini 返回状态 %d: %s", resp.StatusCode, msg))
	}
	return body, nil
}
