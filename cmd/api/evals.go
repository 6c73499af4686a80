package main

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/eval"
)

// setupEvalRoutes registers the read-only eval dashboard: per-run results,
// cross-run aggregations (grades, failures, windowed summaries), and the
// evaluator registry's self-description.
func (s *APIServer) setupEvalRoutes(v1 *gin.RouterGroup) {
	if s.store == nil {
		return
	}
	evals := v1.Group("/evals")
	evals.GET("/run/:run_id", s.rateLimiter.ReadMiddleware(), s.handleEvalRun)
	evals.GET("/run/:run_id/details", s.rateLimiter.ReadMiddleware(), s.handleEvalRunDetails)
	evals.GET("/dashboard", s.rateLimiter.ReadMiddleware(), s.handleEvalDashboard)
	evals.GET("/runs", s.rateLimiter.ReadMiddleware(), s.handleEvalRuns)
	evals.GET("/conversations/:conversation_id", s.rateLimiter.ReadMiddleware(), s.handleEvalConversation)
	evals.GET("/summary", s.rateLimiter.ReadMiddleware(), s.handleEvalSummary)
	evals.POST("/run/:run_id/explain", s.rateLimiter.OrderMiddleware(), s.handleEvalExplain)
	evals.GET("/definitions", s.rateLimiter.ReadMiddleware(), s.handleEvalDefinitions)
	evals.GET("/definition/:eval_name", s.rateLimiter.ReadMiddleware(), s.handleEvalDefinition)
}

func (s *APIServer) handleEvalRun(c *gin.Context) {
	runID := c.Param("run_id")
	results, err := s.store.ResultsByRun(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("eval results by run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "results": results, "count": len(results)})
}

// handleEvalRunDetails is the same per-run result set, reshaped with the
// grade every category/overall derivation uses elsewhere on the dashboard,
// so a single run can be inspected without cross-referencing /dashboard.
func (s *APIServer) handleEvalRunDetails(c *gin.Context) {
	runID := c.Param("run_id")
	results, err := s.store.ResultsByRun(c.Request.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("eval run details failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     runID,
		"results":    results,
		"categories": categoryBreakdown(results),
		"overall":    overallGrade(results),
	})
}

func (s *APIServer) handleEvalDashboard(c *gin.Context) {
	results, err := s.store.ResultsSince(c.Request.Context(), time.Time{})
	if err != nil {
		log.Error().Err(err).Msg("eval dashboard aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, dashboardPayload(results))
}

func (s *APIServer) handleEvalRuns(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	runs, err := s.store.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("list runs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs), "limit": limit, "offset": offset})
}

func (s *APIServer) handleEvalConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	runs, err := s.store.ListRunsByConversation(c.Request.Context(), conversationID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("list runs by conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "runs": runs, "count": len(runs)})
}

// handleEvalSummary answers a time-windowed dashboard aggregation:
// window=24h|48h|7d, defaulting to 24h.
func (s *APIServer) handleEvalSummary(c *gin.Context) {
	window := c.DefaultQuery("window", "24h")
	lookback, ok := summaryWindows[window]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window", "allowed": []string{"24h", "48h", "7d"}})
		return
	}
	since := time.Now().UTC().Add(-lookback)
	results, err := s.store.ResultsSince(c.Request.Context(), since)
	if err != nil {
		log.Error().Err(err).Str("window", window).Msg("eval summary aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	payload := dashboardPayload(results)
	payload["window"] = window
	payload["since"] = since
	c.JSON(http.StatusOK, payload)
}

var summaryWindows = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"48h": 48 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// evalExplainRequest is the wire shape for POST /run/{id}/explain: a
// human-authored or template-generated explanation attached to one
// eval_results row after the fact.
type evalExplainRequest struct {
	EvalName    string `json:"eval_name" binding:"required"`
	Explanation string `json:"explanation" binding:"required"`
}

func (s *APIServer) handleEvalExplain(c *gin.Context) {
	runID := c.Param("run_id")
	var req evalExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.RecordExplanation(c.Request.Context(), runID, req.EvalName, req.Explanation, "operator"); err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("eval_name", req.EvalName).Msg("record eval explanation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "eval_name": req.EvalName, "status": "recorded"})
}

func (s *APIServer) handleEvalDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"definitions": eval.Definitions()})
}

func (s *APIServer) handleEvalDefinition(c *gin.Context) {
	name := c.Param("eval_name")
	def, ok := eval.DefinitionByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "eval_not_found", "eval_name": name})
		return
	}
	c.JSON(http.StatusOK, def)
}

// grade converts a 0..1 average score into the dashboard's letter grade:
// A>=0.9, B>=0.8, C>=0.7, D>=0.6, F<0.6.
func grade(avg float64) string {
	switch {
	case avg >= 0.9:
		return "A"
	case avg >= 0.8:
		return "B"
	case avg >= 0.7:
		return "C"
	case avg >= 0.6:
		return "D"
	default:
		return "F"
	}
}

// failureThreshold is the score below which a result counts as a "top
// failure" for the dashboard's sorted-ascending failure list.
const failureThreshold = 0.6

func categoryBreakdown(results []domain.EvalResult) map[string]gin.H {
	sums := make(map[domain.EvalCategory]float64)
	counts := make(map[domain.EvalCategory]int)
	for _, r := range results {
		sums[r.EvalCategory] += r.Score
		counts[r.EvalCategory]++
	}
	out := make(map[string]gin.H, len(counts))
	for cat, count := range counts {
		avg := sums[cat] / float64(count)
		out[string(cat)] = gin.H{"average": avg, "grade": grade(avg), "count": count}
	}
	return out
}

func overallGrade(results []domain.EvalResult) gin.H {
	if len(results) == 0 {
		return gin.H{"average": 0.0, "grade": "F", "count": 0}
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	avg := sum / float64(len(results))
	return gin.H{"average": avg, "grade": grade(avg), "count": len(results)}
}

// dashboardPayload builds the read-only aggregation shared by /dashboard
// and /summary: per-category average+grade, grade distribution, and the
// lowest-scoring results sorted ascending.
func dashboardPayload(results []domain.EvalResult) gin.H {
	distribution := map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0}
	for _, r := range results {
		distribution[grade(r.Score)]++
	}

	failures := make([]domain.EvalResult, 0)
	for _, r := range results {
		if r.Score < failureThreshold {
			failures = append(failures, r)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Score < failures[j].Score })

	return gin.H{
		"categories":         categoryBreakdown(results),
		"overall":            overallGrade(results),
		"grade_distribution": distribution,
		"top_failures":       failures,
		"total_results":      len(results),
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n := 0
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return fallback
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
