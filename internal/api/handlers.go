package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scoobystack/scooby-engine/internal/utils"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(utils.KindMalformedInput)})
		return
	}

	model, err := req.toModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(utils.KindMalformedInput)})
		return
	}

	result, err := s.engine.Submit(c.Request.Context(), model)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAnalyzeResponse(result))
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(utils.KindMalformedInput)})
		return
	}

	if err := s.engine.SubmitFeedback(c.Request.Context(), req.toModel()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleIncidents(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "hours must be a positive integer", Kind: string(utils.KindMalformedInput)})
			return
		}
		hours = parsed
	}

	incidents, err := s.engine.RecentIncidents(c.Request.Context(), hours, c.Query("severity"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Analytics())
}

func (s *Server) handleCacheFlush(c *gin.Context) {
	if err := s.engine.FlushCache(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CacheStats())
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case utils.KindMalformedInput:
		status = http.StatusBadRequest
	case utils.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case utils.KindTimedOut:
		status = http.StatusGatewayTimeout
	case utils.KindEncodingUnavailable, utils.KindOracleUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, errorResponse{Error: err.Error(), Kind: string(kind)})
}
