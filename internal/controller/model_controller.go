package controller

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"pwguess/internal/service"
	"pwguess/internal/service/montecarlo"
	"pwguess/internal/service/ngram"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBatchSize bounds the passwords accepted by one estimate request
const MaxBatchSize = 10000

type ModelController struct {
	simulator *service.SimulatorService
	logger    *zap.Logger
}

func NewModelController(simulator *service.SimulatorService, logger *zap.Logger) *ModelController {
	return &ModelController{
		simulator: simulator,
		logger:    logger,
	}
}

type ScoreRequest struct {
	Password string `json:"password" binding:"required"`
}

type EstimateRequest struct {
	Passwords      []string `json:"passwords" binding:"required"`
	GuessThreshold float64  `json:"guess_threshold,omitempty"`
}

// GuessResponse is one password's guessability. GuessNumber is null when
// the password cannot be ranked.
type GuessResponse struct {
	Password    string   `json:"password"`
	Tokens      []string `json:"tokens"`
	ML2P        float64  `json:"ml2p"`
	Probability float64  `json:"probability"`
	GuessNumber *float64 `json:"guess_number"`
	Coverage    string   `json:"coverage"`
	Exact       bool     `json:"exact"`
	Count       int64    `json:"count,omitempty"`
	Cracked     int64    `json:"cracked,omitempty"`
	Ratio       float64  `json:"ratio,omitempty"`
	CrackedNow  bool     `json:"cracked_now,omitempty"`
}

type EstimateResponse struct {
	Entries []GuessResponse `json:"entries"`
	Total   int64           `json:"total"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func (mc *ModelController) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrNoModel) || errors.Is(err, service.ErrNoCurve) {
		status = http.StatusServiceUnavailable
	}
	mc.logger.Error(msg, zap.Error(err))
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func (mc *ModelController) Score(c *gin.Context) {
	var request ScoreRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		mc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	est, err := mc.simulator.Estimate(request.Password)
	if err != nil && !errors.Is(err, service.ErrNoCurve) {
		mc.writeError(c, "Failed to score password", err)
		return
	}

	c.JSON(http.StatusOK, GuessResponse{
		Password:    est.Password,
		Tokens:      est.Tokens,
		ML2P:        est.ML2P,
		Probability: est.Probability,
		GuessNumber: finite(est.GuessNumber),
		Coverage:    est.Coverage.String(),
		Exact:       est.Exact,
	})
}

func (mc *ModelController) Estimate(c *gin.Context) {
	var request EstimateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		mc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}
	if len(request.Passwords) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Too many passwords",
		})
		return
	}

	set, err := mc.simulator.ReadTestSet(c.Request.Context(), strings.NewReader(strings.Join(request.Passwords, "\n")))
	if err != nil {
		mc.writeError(c, "Failed to read passwords", err)
		return
	}
	report, err := mc.simulator.Evaluate(c.Request.Context(), set, montecarlo.ReportOptions{GuessThreshold: request.GuessThreshold})
	if err != nil {
		mc.writeError(c, "Failed to estimate guess numbers", err)
		return
	}

	response := EstimateResponse{Entries: make([]GuessResponse, 0, len(report.Entries)), Total: report.Total}
	for _, e := range report.Entries {
		response.Entries = append(response.Entries, GuessResponse{
			Password:    e.Password,
			Tokens:      e.Tokens,
			ML2P:        e.ML2P,
			Probability: e.Probability,
			GuessNumber: finite(e.GuessNumber),
			Coverage:    e.Coverage.String(),
			Exact:       e.Exact,
			Count:       e.Count,
			Cracked:     e.Cracked,
			Ratio:       e.Ratio,
			CrackedNow:  e.CrackedNow,
		})
	}
	c.JSON(http.StatusOK, response)
}

type StatsResponse struct {
	Model      ngram.ModelStats    `json:"model"`
	Simulation *SimulationResponse `json:"simulation,omitempty"`
}

type SimulationResponse struct {
	RunID   string             `json:"run_id"`
	Samples int                `json:"samples"`
	Indexed int                `json:"indexed,omitempty"`
	Summary montecarlo.Summary `json:"summary"`
	Curve   []montecarlo.Point `json:"curve"`
	Elapsed string             `json:"elapsed"`
}

func simulationResponse(sim *service.Simulation) *SimulationResponse {
	resp := &SimulationResponse{
		RunID:   sim.RunID.String(),
		Samples: sim.Curve.Len(),
		Summary: sim.Summary,
		Curve:   sim.Curve.Points(32),
		Elapsed: sim.Elapsed.String(),
	}
	if sim.Index != nil {
		resp.Indexed = sim.Index.Len()
	}
	return resp
}

func (mc *ModelController) Stats(c *gin.Context) {
	m, err := mc.simulator.Model()
	if err != nil {
		mc.writeError(c, "Failed to get model stats", err)
		return
	}
	response := StatsResponse{Model: m.Stats()}
	if sim, err := mc.simulator.Simulation(); err == nil {
		response.Simulation = simulationResponse(sim)
	}
	c.JSON(http.StatusOK, response)
}

func (mc *ModelController) Simulate(c *gin.Context) {
	sim, err := mc.simulator.Simulate(c.Request.Context(), nil)
	if err != nil {
		mc.writeError(c, "Failed to run simulation", err)
		return
	}
	c.JSON(http.StatusOK, simulationResponse(sim))
}
