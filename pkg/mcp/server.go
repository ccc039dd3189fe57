package mcp

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"pwguess/internal/config"
	"pwguess/internal/service"
	"pwguess/internal/service/montecarlo"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MaxToolPasswords bounds the passwords accepted by one tool call
const MaxToolPasswords = 1000

type GuessServer struct {
	server    *mcp.Server
	simulator *service.SimulatorService
	config    *config.Config
	logger    *zap.Logger
	handler   *mcp.StreamableHTTPHandler
}

type ScorePasswordParams struct {
	Password string `json:"password" jsonschema:"the password to score"`
}

type EstimateParams struct {
	Passwords []string `json:"passwords" jsonschema:"the passwords to rank"`
}

func NewGuessServer(simulator *service.SimulatorService, cfg *config.Config, logger *zap.Logger) *GuessServer {
	server := &GuessServer{
		simulator: simulator,
		config:    cfg,
		logger:    logger,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "PasswordGuessability",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "scorePassword",
		Description: "Score a password with the n-gram model. Returns its -log2 probability, its cheapest token decomposition and, when a simulation has run, its estimated guess number",
	}, server.handleScorePassword)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "estimateGuessNumber",
		Description: "Estimate guess numbers for a list of passwords. Returns the passwords ordered from easiest to hardest to guess",
	}, server.handleEstimate)

	server.handler = mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	server.server = mcpServer
	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func formatGuessNumber(gn float64) string {
	if math.IsInf(gn, 1) {
		return "beyond sampled range"
	}
	return humanize.CommafWithDigits(gn, 0)
}

func (s *GuessServer) handleScorePassword(ctx context.Context, req *mcp.CallToolRequest, args ScorePasswordParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling scorePassword request", zap.Int("length", len(args.Password)))

	est, err := s.simulator.Estimate(args.Password)
	if est == nil {
		s.logger.Error("Failed to score password", zap.Error(err))
		return textResult(fmt.Sprintf("Failed to score password: %v", err)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ml2p: %.4f\n", est.ML2P)
	fmt.Fprintf(&sb, "probability: %.6g\n", est.Probability)
	fmt.Fprintf(&sb, "tokens: %s\n", strings.Join(est.Tokens, " | "))
	if err != nil {
		fmt.Fprintf(&sb, "guess number: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(&sb, "guess number: %s (%s", formatGuessNumber(est.GuessNumber), est.Coverage)
		if est.Exact {
			sb.WriteString(", sampled")
		}
		sb.WriteString(")\n")
	}
	return textResult(sb.String()), nil, nil
}

func (s *GuessServer) handleEstimate(ctx context.Context, req *mcp.CallToolRequest, args EstimateParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling estimateGuessNumber request", zap.Int("passwords", len(args.Passwords)))

	if len(args.Passwords) == 0 {
		return textResult("No passwords given."), nil, nil
	}
	if len(args.Passwords) > MaxToolPasswords {
		return textResult(fmt.Sprintf("Too many passwords: %d, at most %d", len(args.Passwords), MaxToolPasswords)), nil, nil
	}

	set, err := s.simulator.ReadTestSet(ctx, strings.NewReader(strings.Join(args.Passwords, "\n")))
	if err != nil {
		return textResult(fmt.Sprintf("Failed to read passwords: %v", err)), nil, nil
	}
	report, err := s.simulator.Evaluate(ctx, set, montecarlo.ReportOptions{})
	if err != nil {
		s.logger.Error("Failed to estimate guess numbers", zap.Error(err))
		return textResult(fmt.Sprintf("Failed to estimate guess numbers: %v", err)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Guess numbers for %d passwords:\n", report.Total)
	for _, e := range report.Entries {
		fmt.Fprintf(&sb, "- %s: %s (ml2p %.4f, %s)\n", e.Password, formatGuessNumber(e.GuessNumber), e.ML2P, e.Coverage)
	}
	return textResult(sb.String()), nil, nil
}

// SetupHTTPRoutes mounts the MCP handler on the router and, when the MCP
// address differs from the API port, serves it on its own listener too
func (s *GuessServer) SetupHTTPRoutes(router *gin.Engine) {
	router.Any("/mcp", gin.WrapH(s.handler))

	if s.config.Mcp.Port == s.config.App.Port {
		return
	}
	go func() {
		address := s.config.Mcp.GetAddress()
		s.logger.Info("MCP Server going to listen", zap.String("address", address))
		if err := http.ListenAndServe(address, s.handler); err != nil {
			s.logger.Error("MCP Server failed", zap.Error(err))
		}
	}()
}
