package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"

	"foodcal-server-go/internal/core/providers/vision"
	"foodcal-server-go/internal/docs"
	"foodcal-server-go/internal/domain/eventbus"
	domainimage "foodcal-server-go/internal/domain/image"
	"foodcal-server-go/internal/domain/nutrition"
	platformconfig "foodcal-server-go/internal/platform/config"
	platformerrors "foodcal-server-go/internal/platform/errors"
	platformlogging "foodcal-server-go/internal/platform/logging"
	platformobservability "foodcal-server-go/internal/platform/observability"
	platformstorage "foodcal-server-go/internal/platform/storage"
	httptransport "foodcal-server-go/internal/transport/http"
	httppredict "foodcal-server-go/internal/transport/http/predict"
	mcptransport "foodcal-server-go/internal/transport/mcp"
)

const scalarHTML = `<!DOCTYPE html>
<html lang="zh-CN">
	<head>
		<meta charset="utf-8" />
		<title>FoodCal API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

// Options 启动参数，通常来自命令行
type Options struct {
	ConfigPath string
	LogLevel   string
	Version    string
	// Console 控制台日志输出，默认 stdout
	Console io.Writer
	// DisableDotEnv 跳过 .env 加载，测试使用
	DisableDotEnv bool
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	opts                  Options
	config                *platformconfig.Config
	configPath            string
	dotEnv                bool
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	metrics               *platformobservability.Metrics
	events                *eventbus.Bus
	providerName          string
	provider              vision.Provider
	analyzer              *nutrition.Analyzer
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context, opts Options) error {
	state := &appState{opts: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	return waitForShutdown(groupCtx, cancel, logger, group, state.config.Server.ShutdownTimeout)
}

// AnalyzeFile 对本地图片执行一次完整识别流程，返回与 /predict 相同的 JSON
func AnalyzeFile(ctx context.Context, opts Options, path string) (nutrition.Outcome, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nutrition.Outcome{}, platformerrors.Wrap(platformerrors.KindStorage, "bootstrap.analyze_file", "failed to read image file", err)
	}

	state := &appState{opts: opts}
	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		state.close()
		return nutrition.Outcome{}, err
	}
	defer state.close()

	return state.analyzer.AnalyzeBytes(ctx, raw), nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":               "加载配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"events:init-bus":           "初始化事件总线",
		"vision:init-provider":      "初始化视觉模型",
		"nutrition:init-analyzer":   "初始化营养识别流水线",
	}

	for _, step := range steps {
		if name, ok := stepNames[step.ID]; ok {
			logger.InfoTag("引导", name)
		}
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "vision:init-provider",
			Title:     "Initialise vision model provider",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindVision,
			Execute:   initVisionStep,
		},
		{
			ID:        "nutrition:init-analyzer",
			Title:     "Initialise nutrition analyzer",
			DependsOn: []string{"vision:init-provider", "events:init-bus"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAnalyzerStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithDotEnv(!state.opts.DisableDotEnv)
	if state.opts.ConfigPath != "" {
		loader = loader.WithPath(state.opts.ConfigPath)
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}
	if state.opts.LogLevel != "" {
		result.Config.Log.Level = state.opts.LogLevel
	}

	state.config = result.Config
	state.configPath = result.Path
	state.dotEnv = result.DotEnv
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  state.opts.Console,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to create logger", err)
	}
	state.logger = logger

	if state.configPath == "" {
		logger.InfoTag("引导", "未找到配置文件，使用默认配置")
	} else {
		logger.InfoTag("引导", "配置来源: %s", state.configPath)
	}
	if !state.dotEnv && !state.opts.DisableDotEnv {
		logger.DebugTag("引导", "未找到 .env 文件，使用系统环境变量")
	}
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := state.config
	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{Enabled: cfg.Metrics.Enabled}, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability", err)
	}
	state.observabilityShutdown = shutdown

	if cfg.Metrics.Enabled {
		state.metrics = platformobservability.NewMetrics()
	}
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.New(state.config.Events.Workers)
	bus.Start()
	state.events = bus

	if state.metrics != nil {
		if err := state.metrics.Subscribe(bus); err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to subscribe metrics", err)
		}
	}
	return nil
}

func initVisionStep(_ context.Context, state *appState) error {
	name, providerCfg, ok := state.config.SelectedVLLLM()
	if !ok {
		return platformerrors.New(platformerrors.KindConfig, "vision:init-provider", fmt.Sprintf("VLLLM provider %q not configured", name))
	}

	provider, err := vision.NewProvider(vision.FromConfig(providerCfg), state.logger)
	if err != nil {
		state.logger.ErrorTag("视觉", "创建 provider 失败: %v", err)
		return err
	}
	state.providerName = name
	state.provider = provider

	state.logger.InfoTag("视觉", "视觉模型就绪: %s (%s/%s)", name, provider.Name(), provider.Model())
	return nil
}

func initAnalyzerStep(_ context.Context, state *appState) error {
	cfg := state.config
	_, providerCfg, _ := cfg.SelectedVLLLM()

	store, err := platformstorage.NewArtifactStore(cfg.Nutrition.ArtifactDir)
	if err != nil {
		return err
	}

	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security:     providerCfg.Security,
		Logger:       state.logger,
		Store:        store,
		JPEGQuality:  cfg.Nutrition.JPEGQuality,
		MaxDimension: cfg.Nutrition.MaxDimension,
	})
	if err != nil {
		return err
	}

	analyzer, err := nutrition.NewAnalyzer(nutrition.Options{
		Pipeline:         pipeline,
		Provider:         state.provider,
		Logger:           state.logger,
		Events:           state.events,
		PadMissingFields: cfg.Nutrition.PadMissingFields,
		KeepArtifacts:    cfg.Nutrition.KeepArtifacts,
	})
	if err != nil {
		return err
	}
	state.analyzer = analyzer

	state.logger.InfoTag("营养", "临时图片目录: %s", store.Dir())
	return nil
}

// buildRouter 组装全部 HTTP 路由
func buildRouter(state *appState) (*httptransport.Router, *mcptransport.Server, error) {
	cfg := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: state.metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	router := httpRouter.Engine

	predictService, err := httppredict.NewService(state.analyzer, state.events, logger)
	if err != nil {
		return nil, nil, platformerrors.Wrap(platformerrors.KindTransport, "predict:new-service", "failed to create predict service", err)
	}
	_, providerCfg, _ := cfg.SelectedVLLLM()
	predictService.WithMaxBodyBytes(httppredict.MaxBodyBytes(providerCfg.Security.MaxFileSize))
	if err := predictService.Register(context.Background(), httpRouter.Root); err != nil {
		return nil, nil, err
	}

	httptransport.NewHealthService(state.providerName, state.provider.Model(), logger).Register(httpRouter.Root)

	var mcpServer *mcptransport.Server
	if cfg.MCP.Enabled {
		mcpServer = mcptransport.NewServer(state.analyzer, mcptransport.Options{
			Version: state.opts.Version,
			BaseURL: cfg.MCP.BaseURL,
		}, logger)
		mcpServer.Register(httpRouter.Root)
	}

	if state.opts.Version != "" {
		docs.SwaggerInfo.Version = state.opts.Version
	}
	router.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.ErrorTag("HTTP", "生成 OpenAPI 文档失败: %v", err)
			httptransport.RespondError(c, http.StatusInternalServerError, "failed to generate openapi document", gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})

	return httpRouter, mcpServer, nil
}

func startHTTPServer(
	state *appState,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	cfg := state.config
	logger := state.logger

	httpRouter, mcpServer, err := buildRouter(state)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port)),
		Handler:           httpRouter.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://localhost:%d", cfg.Server.Port)
		logger.InfoTag("HTTP", "识别接口: POST http://localhost:%d/predict", cfg.Server.Port)
		logger.InfoTag("HTTP", "在线文档入口: http://localhost:%d/docs", cfg.Server.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
			defer cancel()

			if mcpServer != nil {
				if err := mcpServer.Shutdown(shutdownCtx); err != nil {
					logger.WarnTag("MCP", "MCP 会话关闭失败: %v", err)
				}
			}
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func shutdownTimeout(configured time.Duration) time.Duration {
	if configured <= 0 {
		return 15 * time.Second
	}
	return configured
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	timeout time.Duration,
) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到退出信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	timeout = shutdownTimeout(timeout)

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(timeout):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "服务关闭超时")
	}
	return nil
}

// close 按初始化的逆序释放资源，可重复调用
func (s *appState) close() {
	if s.events != nil {
		s.events.Stop()
		s.events = nil
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.WarnTag("视觉", "provider 未正常关闭: %v", err)
		}
		s.provider = nil
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag("引导", "可观测性未正常关闭: %v", err)
		}
		cancel()
		s.observabilityShutdown = nil
	}
	if s.logger != nil {
		_ = s.logger.Close()
		s.logger = nil
	}
}
