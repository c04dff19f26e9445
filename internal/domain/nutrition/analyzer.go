package nutrition

import (
	"context"
	"encoding/json"
	"time"

	"foodcal-server-go/internal/core/providers/vision"
	"foodcal-server-go/internal/domain/eventbus"
	domainimage "foodcal-server-go/internal/domain/image"
	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
	"foodcal-server-go/internal/platform/observability"
)

// Stage names the pipeline step that produced a fallback.
type Stage string

const (
	StageNone    Stage = ""
	StageDecode  Stage = "decode"
	StageImage   Stage = "image"
	StageStorage Stage = "storage"
	StageVision  Stage = "vision"
	StageExtract Stage = "extract"
	StageUnknown Stage = "unknown"
)

func stageOf(err error) Stage {
	switch errors.KindOf(err) {
	case errors.KindDecode:
		return StageDecode
	case errors.KindImage:
		return StageImage
	case errors.KindStorage:
		return StageStorage
	case errors.KindVision:
		return StageVision
	case errors.KindExtract:
		return StageExtract
	default:
		return StageUnknown
	}
}

// ImagePipeline materialises an upload as a normalised artifact.
type ImagePipeline interface {
	ProcessBase64(ctx context.Context, payload string) (*domainimage.Artifact, error)
	Process(ctx context.Context, raw []byte) (*domainimage.Artifact, error)
	Release(a *domainimage.Artifact) error
}

// Publisher receives analysis events.
type Publisher interface {
	PublishAsync(topic string, args ...any)
}

// Outcome is the result of one analysis. Payload is always a JSON object:
// the extracted model answer, or the fallback record when Fallback is set.
type Outcome struct {
	Payload      json.RawMessage
	Fallback     bool
	Stage        Stage
	Err          error
	Raw          string
	Provider     string
	Duration     time.Duration
	ModelLatency time.Duration
}

type Options struct {
	Pipeline         ImagePipeline
	Provider         vision.Provider
	Logger           *logging.Logger
	Events           Publisher
	PadMissingFields bool
	KeepArtifacts    bool
}

// Analyzer runs decode -> normalise -> model -> extract and never fails outward.
type Analyzer struct {
	pipeline   ImagePipeline
	provider   vision.Provider
	logger     *logging.Logger
	events     Publisher
	padMissing bool
	keep       bool
}

func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Pipeline == nil {
		return nil, errors.New(errors.KindConfig, "nutrition.new_analyzer", "image pipeline is required")
	}
	if opts.Provider == nil {
		return nil, errors.New(errors.KindConfig, "nutrition.new_analyzer", "vision provider is required")
	}
	return &Analyzer{
		pipeline:   opts.Pipeline,
		provider:   opts.Provider,
		logger:     opts.Logger,
		events:     opts.Events,
		padMissing: opts.PadMissingFields,
		keep:       opts.KeepArtifacts,
	}, nil
}

// Provider returns the injected model client.
func (a *Analyzer) Provider() vision.Provider {
	return a.provider
}

// AnalyzeBase64 runs the full pipeline on a base64 (or data URL) payload.
func (a *Analyzer) AnalyzeBase64(ctx context.Context, payload string) Outcome {
	return a.run(ctx, func(ctx context.Context) (*domainimage.Artifact, error) {
		return a.pipeline.ProcessBase64(ctx, payload)
	})
}

// AnalyzeBytes runs the pipeline on already-decoded image bytes.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, raw []byte) Outcome {
	return a.run(ctx, func(ctx context.Context) (*domainimage.Artifact, error) {
		return a.pipeline.Process(ctx, raw)
	})
}

func (a *Analyzer) run(ctx context.Context, materialise func(context.Context) (*domainimage.Artifact, error)) Outcome {
	start := time.Now()
	ctx, end := observability.StartSpan(ctx, "nutrition", "analyze")

	out := a.analyze(ctx, materialise)
	out.Provider = a.provider.Name()
	out.Duration = time.Since(start)
	end(out.Err)

	a.report(ctx, out)
	return out
}

func (a *Analyzer) analyze(ctx context.Context, materialise func(context.Context) (*domainimage.Artifact, error)) Outcome {
	artifact, err := materialise(ctx)
	if err != nil {
		return fallback(err, "")
	}
	defer a.release(artifact)

	modelStart := time.Now()
	text, err := a.provider.Identify(ctx, vision.Request{
		ImagePath: artifact.Path,
		MIMEType:  artifact.MIMEType,
		Prompt:    Prompt,
	})
	latency := time.Since(modelStart)
	if err != nil {
		out := fallback(errors.Wrap(errors.KindVision, "nutrition.identify", "vision model call failed", err), "")
		out.ModelLatency = latency
		return out
	}

	extraction := Extract(text)
	if !extraction.Found {
		out := fallback(extraction.Err, text)
		out.ModelLatency = latency
		return out
	}

	payload := extraction.Object
	if a.padMissing {
		payload, _ = PadMissing(payload)
	}

	return Outcome{Payload: payload, Raw: text, ModelLatency: latency}
}

func fallback(err error, raw string) Outcome {
	return Outcome{
		Payload:  FallbackPayload(),
		Fallback: true,
		Stage:    stageOf(err),
		Err:      err,
		Raw:      raw,
	}
}

func (a *Analyzer) release(artifact *domainimage.Artifact) {
	if a.keep {
		return
	}
	if err := a.pipeline.Release(artifact); err != nil {
		a.logger.WarnTag("营养", "清理临时图片失败: %v", err)
	}
}

func (a *Analyzer) report(ctx context.Context, out Outcome) {
	requestID := observability.RequestID(ctx)

	event := eventbus.AnalysisEventData{
		RequestID:    requestID,
		Provider:     out.Provider,
		Fallback:     out.Fallback,
		Stage:        string(out.Stage),
		Duration:     out.Duration,
		ModelLatency: out.ModelLatency,
	}

	topic := eventbus.EventAnalysisCompleted
	if out.Fallback {
		topic = eventbus.EventAnalysisFallback
		event.Error = out.Err.Error()
		a.logger.WarnTag("营养", "返回回退记录: request_id=%s stage=%s err=%v", requestID, out.Stage, out.Err)
		if out.Raw != "" {
			a.logger.DebugTag("营养", "模型原始输出: %s", out.Raw)
		}
	} else {
		a.logger.InfoTag("营养", "识别完成: request_id=%s provider=%s model_latency=%s", requestID, out.Provider, out.ModelLatency)
	}
	observability.RecordMetric(ctx, "nutrition.analysis.duration_ms", float64(out.Duration.Milliseconds()), map[string]string{
		"provider": out.Provider,
		"stage":    string(out.Stage),
	})

	if a.events != nil {
		a.events.PublishAsync(topic, event)
	}
}
