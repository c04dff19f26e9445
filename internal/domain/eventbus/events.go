package eventbus

import "time"

const (
	EventAnalysisCompleted = "nutrition:analyzed"
	EventAnalysisFallback  = "nutrition:fallback"
	EventEstimateCompleted = "nutrition:estimated"
)

// AnalysisEventData 单次识别的结果摘要
type AnalysisEventData struct {
	RequestID    string        `json:"request_id,omitempty"`
	Provider     string        `json:"provider"`
	Fallback     bool          `json:"fallback"`
	Stage        string        `json:"stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	ModelLatency time.Duration `json:"model_latency"`
}

type EstimateEventData struct {
	RequestID string `json:"request_id,omitempty"`
	Matched   int    `json:"matched"`
	Fallback  bool   `json:"fallback"`
}
