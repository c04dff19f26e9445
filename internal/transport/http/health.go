package httptransport

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"foodcal-server-go/internal/platform/logging"
)

// HealthResponse 健康检查返回结构
type HealthResponse struct {
	Status        string  `json:"status"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
}

// HealthService 暴露 /health，附带进程资源占用
type HealthService struct {
	provider string
	model    string
	started  time.Time
	proc     *process.Process
	logger   *logging.Logger
}

func NewHealthService(provider, model string, logger *logging.Logger) *HealthService {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.WarnTag("HTTP", "无法读取进程信息，健康检查将不含资源数据: %v", err)
		proc = nil
	}
	return &HealthService{
		provider: provider,
		model:    model,
		started:  time.Now(),
		proc:     proc,
		logger:   logger,
	}
}

// Register 注册健康检查路由
func (h *HealthService) Register(router gin.IRoutes) {
	router.GET("/health", h.handleHealth)
}

// handleHealth 服务健康检查
// @Summary 健康检查
// @Description 返回服务状态、当前视觉模型以及进程内存和 CPU 占用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.Snapshot(c.Request.Context()))
}

// Snapshot 采集当前健康状态
func (h *HealthService) Snapshot(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status:        "ok",
		Provider:      h.provider,
		Model:         h.model,
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
	if h.proc == nil {
		return resp
	}

	if mem, err := h.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		resp.RSSBytes = mem.RSS
	} else if err != nil {
		h.logger.DebugTag("HTTP", "读取内存信息失败: %v", err)
	}
	if cpu, err := h.proc.CPUPercentWithContext(ctx); err == nil {
		resp.CPUPercent = cpu
	} else {
		h.logger.DebugTag("HTTP", "读取 CPU 信息失败: %v", err)
	}
	return resp
}
