package predict

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"foodcal-server-go/internal/core/providers/vision"
	"foodcal-server-go/internal/domain/eventbus"
	domainimage "foodcal-server-go/internal/domain/image"
	"foodcal-server-go/internal/domain/nutrition"
	"foodcal-server-go/internal/platform/config"
	"foodcal-server-go/internal/platform/logging"
	"foodcal-server-go/internal/platform/observability"
	"foodcal-server-go/internal/platform/storage"
	platformtesting "foodcal-server-go/internal/platform/testing"
	httptransport "foodcal-server-go/internal/transport/http"
)

const (
	appleJSON    = `{"food":"apple","calories":95,"carbs":25,"protein":0.5,"fat":0.3,"fiber":4.4,"sugar":19}`
	fallbackJSON = `{"food":"Unknown","calories":0,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Identify(ctx context.Context, req vision.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }
func (m *mockProvider) Close() error  { return nil }

type stubAnalyzer struct {
	calls    int
	payloads []string
	out      nutrition.Outcome
}

func (s *stubAnalyzer) AnalyzeBase64(_ context.Context, payload string) nutrition.Outcome {
	s.calls++
	s.payloads = append(s.payloads, payload)
	return s.out
}

func newEngine(t *testing.T, analyzer Analyzer, events nutrition.Publisher, metrics *observability.Metrics) *gin.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	router, err := httptransport.Build(httptransport.Options{
		Config:  cfg,
		Logger:  logging.Discard(),
		Metrics: metrics,
	})
	require.NoError(t, err)

	svc, err := NewService(analyzer, events, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.Root))
	return router.Engine
}

func newRealAnalyzer(t *testing.T, provider vision.Provider, events nutrition.Publisher) *nutrition.Analyzer {
	t.Helper()
	store, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security: config.DefaultConfig().VLLLM["GeminiVLLM"].Security,
		Logger:   logging.Discard(),
		Store:    store,
	})
	require.NoError(t, err)
	analyzer, err := nutrition.NewAnalyzer(nutrition.Options{
		Pipeline: pipeline,
		Provider: provider,
		Logger:   logging.Discard(),
		Events:   events,
	})
	require.NoError(t, err)
	return analyzer
}

func post(engine http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil, logging.Discard())
	assert.Error(t, err)

	_, err = NewService(&stubAnalyzer{}, nil, nil)
	assert.Error(t, err)
}

func TestPredict_ReturnsAnalyzerPayload(t *testing.T) {
	stub := &stubAnalyzer{out: nutrition.Outcome{Payload: []byte(appleJSON)}}
	engine := newEngine(t, stub, nil, nil)

	rec := post(engine, "/predict", `{"image":"aGVsbG8="}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, appleJSON, rec.Body.String())
	assert.Equal(t, []string{"aGVsbG8="}, stub.payloads)
}

func TestPredict_InvalidBodyFallsBack(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "image=abc"},
		{"empty body", ""},
		{"wrong type", `{"image":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			engine := newEngine(t, stub, nil, nil)

			rec := post(engine, "/predict", tt.body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, fallbackJSON, rec.Body.String())
			assert.Zero(t, stub.calls)
		})
	}
}

func TestMaxBodyBytes(t *testing.T) {
	assert.Zero(t, MaxBodyBytes(0))
	assert.Zero(t, MaxBodyBytes(-1))
	assert.Equal(t, int64(4+bodyHeadroom), MaxBodyBytes(3))
	assert.Equal(t, int64(8+bodyHeadroom), MaxBodyBytes(4))

	// 10 MiB 图片编码后的请求体必须能通过
	limit := MaxBodyBytes(10 << 20)
	encoded := int64(base64.StdEncoding.EncodedLen(10 << 20))
	assert.GreaterOrEqual(t, limit, encoded+int64(len(`{"image":"data:image/jpeg;base64,"}`)))
}

func TestPredict_OversizedBodyFallsBack(t *testing.T) {
	router, err := httptransport.Build(httptransport.Options{
		Config: config.DefaultConfig(),
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	stub := &stubAnalyzer{out: nutrition.Outcome{Payload: []byte(appleJSON)}}
	svc, err := NewService(stub, nil, logging.Discard())
	require.NoError(t, err)
	svc.WithMaxBodyBytes(1024)
	require.NoError(t, svc.Register(context.Background(), router.Root))

	rec := post(router.Engine, "/predict", `{"image":"`+strings.Repeat("A", 4096)+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fallbackJSON, rec.Body.String())
	assert.Zero(t, stub.calls)

	rec = post(router.Engine, "/estimate", `{"text":"`+strings.Repeat("rice ", 1024)+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fallbackJSON, rec.Body.String())

	rec = post(router.Engine, "/predict", `{"image":"aGVsbG8="}`)
	assert.Equal(t, appleJSON, rec.Body.String())
	assert.Equal(t, 1, stub.calls)
}

func TestPredict_EndToEnd(t *testing.T) {
	tests := []struct {
		name       string
		image      string
		reply      string
		want       string
		callsModel bool
	}{
		{
			name:       "apple with prose",
			image:      "png",
			reply:      "Here is the info:\n" + appleJSON + "\nEnjoy!",
			want:       appleJSON,
			callsModel: true,
		},
		{
			name:       "model cannot identify",
			image:      "png",
			reply:      "I cannot identify this image.",
			want:       fallbackJSON,
			callsModel: true,
		},
		{
			name:  "malformed base64",
			image: "%%%not-base64%%%",
			want:  fallbackJSON,
		},
		{
			name:  "missing image field",
			image: "",
			want:  fallbackJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			if tt.callsModel {
				provider.On("Identify", mock.Anything, mock.Anything).Return(tt.reply, nil).Once()
			}

			metrics := observability.NewMetrics()
			bus := eventbus.New(0)
			defer bus.Stop()
			require.NoError(t, metrics.Subscribe(bus))

			engine := newEngine(t, newRealAnalyzer(t, provider, bus), bus, metrics)

			payload := tt.image
			if payload == "png" {
				payload = platformtesting.SampleImageBase64(t)
			}
			rec := post(engine, "/predict", `{"image":"`+payload+`"}`)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(httptransport.RequestIDHeader))
			provider.AssertExpectations(t)
			if !tt.callsModel {
				provider.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPredict_Idempotent(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Identify", mock.Anything, mock.Anything).Return(appleJSON, nil).Twice()
	engine := newEngine(t, newRealAnalyzer(t, provider, nil), nil, nil)

	body := `{"image":"` + platformtesting.SampleImageBase64(t) + `"}`
	first := post(engine, "/predict", body)
	second := post(engine, "/predict", body)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, appleJSON, first.Body.String())
}

func TestEstimate(t *testing.T) {
	bus := eventbus.New(0)
	defer bus.Stop()

	var events []eventbus.EstimateEventData
	require.NoError(t, bus.Subscribe(eventbus.EventEstimateCompleted, func(e eventbus.EstimateEventData) {
		events = append(events, e)
	}))

	engine := newEngine(t, &stubAnalyzer{}, bus, nil)

	rec := post(engine, "/estimate", `{"text":"chicken with rice and broccoli"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"food":"chicken with rice and broccoli","calories":329,"carbs":35,"protein":37,"fat":4,"fiber":3,"sugar":2}`,
		rec.Body.String())

	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Matched)
	assert.False(t, events[0].Fallback)
	assert.NotEmpty(t, events[0].RequestID)
}

func TestEstimate_EmptyAndInvalid(t *testing.T) {
	engine := newEngine(t, &stubAnalyzer{}, nil, nil)

	for _, body := range []string{`{"text":""}`, `{"text":`, `{}`} {
		rec := post(engine, "/estimate", body)
		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.JSONEq(t, fallbackJSON, rec.Body.String(), body)
	}
}
