package predict

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodcal-server-go/internal/domain/eventbus"
	"foodcal-server-go/internal/domain/nutrition"
	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
	"foodcal-server-go/internal/platform/observability"
)

// Analyzer 图片识别流水线
type Analyzer interface {
	AnalyzeBase64(ctx context.Context, payload string) nutrition.Outcome
}

// bodyHeadroom 留给 JSON 包装和 data URL 前缀的额外字节
const bodyHeadroom = 64 << 10

// MaxBodyBytes 按图片字节上限换算请求体上限：base64 膨胀 4/3 再加余量，<=0 表示不限制
func MaxBodyBytes(maxFileSize int64) int64 {
	if maxFileSize <= 0 {
		return 0
	}
	return (maxFileSize+2)/3*4 + bodyHeadroom
}

// Service 营养识别 HTTP 服务：所有请求都以 200 返回 JSON 记录
type Service struct {
	analyzer     Analyzer
	events       nutrition.Publisher
	logger       *logging.Logger
	maxBodyBytes int64
}

// NewService 创建识别服务，events 可为空
func NewService(analyzer Analyzer, events nutrition.Publisher, logger *logging.Logger) (*Service, error) {
	if analyzer == nil {
		return nil, errors.New(errors.KindConfig, "predict.new", "analyzer is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "predict.new", "logger is required")
	}
	return &Service{analyzer: analyzer, events: events, logger: logger}, nil
}

// WithMaxBodyBytes 限制请求体大小，超限请求返回回退记录
func (s *Service) WithMaxBodyBytes(n int64) *Service {
	s.maxBodyBytes = n
	return s
}

func (s *Service) limitBody(c *gin.Context) {
	if s.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	}
}

// Register 注册识别相关路由
func (s *Service) Register(_ context.Context, router gin.IRoutes) error {
	router.POST("/predict", s.handlePredict)
	router.POST("/estimate", s.handleEstimate)

	s.logger.InfoTag("HTTP", "营养识别路由注册完成")
	return nil
}

// handlePredict 图片营养识别
// @Summary 识别图片中的食物并估算营养
// @Description 解码 base64 图片并交给视觉模型识别，返回模型给出的 JSON 对象；任何环节失败都返回 Unknown 回退记录，状态码始终为 200
// @Tags Nutrition
// @Accept json
// @Produce json
// @Param request body PredictRequest true "base64 图片"
// @Success 200 {object} NutritionRecord
// @Router /predict [post]
func (s *Service) handlePredict(c *gin.Context) {
	s.limitBody(c)

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WarnTag("HTTP", "识别请求体无效，返回回退记录: %v request_id=%s",
			err, observability.RequestID(c.Request.Context()))
		c.Data(http.StatusOK, "application/json; charset=utf-8", nutrition.FallbackPayload())
		return
	}

	out := s.analyzer.AnalyzeBase64(c.Request.Context(), req.Image)
	c.Data(http.StatusOK, "application/json; charset=utf-8", out.Payload)
}

// handleEstimate 文本营养估算
// @Summary 根据文字描述估算营养
// @Description 基于内置常见食物表和份量关键词（large/small/jumbo）估算；空文本返回 Unknown 回退记录
// @Tags Nutrition
// @Accept json
// @Produce json
// @Param request body EstimateRequest true "食物描述"
// @Success 200 {object} NutritionRecord
// @Router /estimate [post]
func (s *Service) handleEstimate(c *gin.Context) {
	requestID := observability.RequestID(c.Request.Context())
	s.limitBody(c)

	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WarnTag("营养", "估算请求体无效，返回回退记录: %v request_id=%s", err, requestID)
		c.JSON(http.StatusOK, nutrition.Fallback())
		return
	}

	est := nutrition.EstimateText(req.Text)
	s.logger.DebugTag("营养", "文本估算: matched=%v multiplier=%.1f request_id=%s", est.Matched, est.Multiplier, requestID)

	if s.events != nil {
		s.events.PublishAsync(eventbus.EventEstimateCompleted, eventbus.EstimateEventData{
			RequestID: requestID,
			Matched:   len(est.Matched),
			Fallback:  est.Fallback,
		})
	}
	c.JSON(http.StatusOK, est.Result)
}
