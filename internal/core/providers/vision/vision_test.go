package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

const testPrompt = "You are a food expert."

var imageBytes = []byte("fake-jpeg-bytes")

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meal.jpg")
	require.NoError(t, os.WriteFile(path, imageBytes, 0o600))
	return path
}

type geminiFake struct {
	mu        sync.Mutex
	server    *httptest.Server
	uploaded  []byte
	generated map[string]any
	deleted   []string
	answer    string
	status    int
}

func newGeminiFake(t *testing.T) *geminiFake {
	f := &geminiFake{answer: `{"food":"apple"}`, status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *geminiFake) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/v1beta/files":
		if r.Header.Get("x-goog-api-key") != "test-key" || r.Header.Get("X-Goog-Upload-Command") != "start" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-Goog-Upload-URL", f.server.URL+"/upload-session/abc")
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && r.URL.Path == "/upload-session/abc":
		if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.uploaded, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"file":{"name":"files/abc","uri":"`+f.server.URL+`/v1beta/files/abc","mimeType":"image/jpeg","state":"ACTIVE"}}`)

	case r.Method == http.MethodPost && r.URL.Path == "/v1beta/models/gemini-1.5-flash:generateContent":
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.generated)
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": f.answer}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1beta/files/"):
		f.deleted = append(f.deleted, r.URL.Path)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *geminiFake) parts(t *testing.T) []any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	contents := f.generated["contents"].([]any)
	require.Len(t, contents, 1)
	return contents[0].(map[string]any)["parts"].([]any)
}

func newGemini(t *testing.T, f *geminiFake, upload bool) Provider {
	t.Helper()
	p, err := NewProvider(Config{
		Type:        "gemini",
		ModelName:   "gemini-1.5-flash",
		BaseURL:     f.server.URL,
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		UploadFiles: upload,
	}, logging.Discard())
	require.NoError(t, err)
	return p
}

func TestGemini_UploadThenGenerate(t *testing.T) {
	fake := newGeminiFake(t)
	p := newGemini(t, fake, true)

	text, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, `{"food":"apple"}`, text)

	assert.Equal(t, imageBytes, fake.uploaded)

	parts := fake.parts(t)
	require.Len(t, parts, 2)
	assert.Equal(t, testPrompt, parts[0].(map[string]any)["text"])
	fileData := parts[1].(map[string]any)["file_data"].(map[string]any)
	assert.Equal(t, fake.server.URL+"/v1beta/files/abc", fileData["file_uri"])
	assert.Equal(t, "image/jpeg", fileData["mime_type"])

	assert.Equal(t, []string{"/v1beta/files/abc"}, fake.deleted)
	assert.Equal(t, "gemini", p.Name())
	assert.Equal(t, "gemini-1.5-flash", p.Model())
}

func TestGemini_InlineData(t *testing.T) {
	fake := newGeminiFake(t)
	p := newGemini(t, fake, false)

	_, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.NoError(t, err)

	assert.Nil(t, fake.uploaded)
	parts := fake.parts(t)
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	assert.Equal(t, base64.StdEncoding.EncodeToString(imageBytes), inline["data"])
}

func TestGemini_QuotaError(t *testing.T) {
	fake := newGeminiFake(t)
	fake.status = http.StatusTooManyRequests
	p := newGemini(t, fake, false)

	_, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindVision))
	assert.Contains(t, err.Error(), "RESOURCE_EXHAUSTED")
}

func TestGemini_StripsThinkBlocks(t *testing.T) {
	fake := newGeminiFake(t)
	fake.answer = "<think>looks like fruit</think>\n{\"food\":\"pear\"}"
	p := newGemini(t, fake, false)

	text, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, `{"food":"pear"}`, text)
}

func TestGemini_EmptyAnswer(t *testing.T) {
	fake := newGeminiFake(t)
	fake.answer = "   "
	p := newGemini(t, fake, false)

	_, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindVision))
}

func TestGemini_MissingImage(t *testing.T) {
	fake := newGeminiFake(t)
	p := newGemini(t, fake, true)

	_, err := p.Identify(context.Background(), Request{ImagePath: filepath.Join(t.TempDir(), "absent.jpg")})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindVision))
}

func TestGemini_ContextCancelled(t *testing.T) {
	fake := newGeminiFake(t)
	p := newGemini(t, fake, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Identify(ctx, Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAI_Identify(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Sure: {\"food\":\"rice\"}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Type: "openai", ModelName: "gpt-4o-mini", BaseURL: server.URL, APIKey: "sk-test"}, logging.Discard())
	require.NoError(t, err)

	text, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, `Sure: {"food":"rice"}`, text)

	messages := captured["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, testPrompt, content[0].(map[string]any)["text"])
	url := content[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(imageBytes), url)
}

func TestOpenAI_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Type: "openai", ModelName: "gpt-4o-mini", BaseURL: server.URL, APIKey: "sk-test"}, logging.Discard())
	require.NoError(t, err)

	_, err = p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindVision))
}

func TestOllama_Identify(t *testing.T) {
	var captured OllamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":"{\"food\":\"egg\"}"},"done":true}`)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Type: "ollama", ModelName: "llava", BaseURL: server.URL, Temperature: 0.2}, logging.Discard())
	require.NoError(t, err)

	text, err := p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, `{"food":"egg"}`, text)

	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, testPrompt, captured.Messages[0].Content)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString(imageBytes)}, captured.Messages[0].Images)
	assert.Equal(t, 0.2, captured.Options["temperature"])
}

func TestOllama_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Type: "ollama", ModelName: "llava", BaseURL: server.URL}, logging.Discard())
	require.NoError(t, err)

	_, err = p.Identify(context.Background(), Request{ImagePath: writeImage(t), Prompt: testPrompt})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown type", Config{Type: "claude", ModelName: "m"}},
		{"missing model", Config{Type: "ollama"}},
		{"gemini without key", Config{Type: "gemini", ModelName: "gemini-1.5-flash"}},
		{"openai without key", Config{Type: "openai", ModelName: "gpt-4o-mini"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg, logging.Discard())
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindConfig))
		})
	}
}

func TestStripThinkTags(t *testing.T) {
	tests := map[string]string{
		"plain answer":                            "plain answer",
		"<think>hmm</think>answer":                "answer",
		"<think>a</think>x<think>b</think>y":      "xy",
		"prefix <think>never closed":              "prefix",
		"stray </think> closing":                  "stray  closing",
		"<think>\nmultiline\n</think>\n{\"a\":1}": `{"a":1}`,
	}
	for input, want := range tests {
		assert.Equal(t, want, stripThinkTags(input), "input: %q", input)
	}
}
