package mcp

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"foodcal-server-go/internal/domain/nutrition"
	"foodcal-server-go/internal/platform/logging"
)

const (
	serverName    = "foodcal-server"
	ToolIdentify  = "identify_food"
	argumentImage = "image"
)

// Analyzer 图片识别流水线
type Analyzer interface {
	AnalyzeBase64(ctx context.Context, payload string) nutrition.Outcome
}

// Options MCP 服务配置
type Options struct {
	Version string
	BaseURL string
}

// Server 以 SSE 方式对外暴露 identify_food 工具
type Server struct {
	mcpServer *server.MCPServer
	sse       *server.SSEServer
	analyzer  Analyzer
	logger    *logging.Logger
}

func NewServer(analyzer Analyzer, opts Options, logger *logging.Logger) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcpServer: server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		analyzer:  analyzer,
		logger:    logger,
	}
	s.mcpServer.AddTool(identifyTool(), s.handleIdentify)

	var sseOpts []server.SSEOption
	if opts.BaseURL != "" {
		sseOpts = append(sseOpts, server.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	s.sse = server.NewSSEServer(s.mcpServer, sseOpts...)
	return s
}

func identifyTool() mcp.Tool {
	return mcp.NewTool(ToolIdentify,
		mcp.WithDescription("Identify the food in a photo and estimate its nutrition. Returns a JSON object with food, calories, carbs, protein, fat, fiber and sugar; unrecognised images return food \"Unknown\" with zeros."),
		mcp.WithString(argumentImage,
			mcp.Required(),
			mcp.Description("Base64 encoded image, optionally as a data URL"),
		),
	)
}

// Register 挂载 SSE 与消息端点
func (s *Server) Register(router gin.IRoutes) {
	router.GET("/sse", gin.WrapH(s.sse.SSEHandler()))
	router.POST("/message", gin.WrapH(s.sse.MessageHandler()))
	s.logger.InfoTag("MCP", "MCP 工具已注册: %s (GET /sse, POST /message)", ToolIdentify)
}

// MCPServer 返回底层 MCP 服务，便于测试直接投递 JSON-RPC 消息
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Shutdown 关闭所有 SSE 会话
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}

func (s *Server) handleIdentify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := any(request.Params.Arguments).(map[string]any)
	image, _ := args[argumentImage].(string)
	if strings.TrimSpace(image) == "" {
		return mcp.NewToolResultError("image argument is required"), nil
	}

	out := s.analyzer.AnalyzeBase64(ctx, image)
	if out.Fallback {
		s.logger.DebugTag("MCP", "identify_food 返回回退记录: stage=%s", out.Stage)
	}
	return mcp.NewToolResultText(string(out.Payload)), nil
}
