package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"civimetre/etl"
	"civimetre/jurisdiction"
	"civimetre/models"
	"civimetre/scoring"
	"civimetre/storage"
)

// Triggerer starts ETL runs. Satisfied by *etl.Orchestrator.
type Triggerer interface {
	Trigger(ctx context.Context, dataset string, mode models.RunMode) (*etl.TriggerResult, error)
	Datasets() []string
}

// Searcher answers full-text queries. Satisfied by *storage.SQLiteStore.
type Searcher interface {
	Search(dataset, query string, limit int) ([]storage.SearchHit, error)
}

// PromiseReader lists tracked promises. Satisfied by *storage.SQLiteStore.
type PromiseReader interface {
	Promises() ([]models.Promise, error)
}

// PeriodReader supplies the data bound that closes open-ended admin
// periods. Satisfied by *storage.SQLiteStore.
type PeriodReader interface {
	MaxApplicationDate() (time.Time, error)
}

// Server is the read API plus the authenticated ETL trigger endpoint.
type Server struct {
	engine   *scoring.Engine
	juris    *jurisdiction.Config
	trigger  Triggerer
	search   Searcher
	promises PromiseReader
	periods  PeriodReader
	token    string
	router   *gin.Engine
	clock    func() time.Time
}

func NewServer(engine *scoring.Engine, juris *jurisdiction.Config, trigger Triggerer, search Searcher, promises PromiseReader, periods PeriodReader, token string) *Server {
	s := &Server{
		engine:   engine,
		juris:    juris,
		trigger:  trigger,
		search:   search,
		promises: promises,
		periods:  periods,
		token:    token,
		clock:    time.Now,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/scores", s.handleScores)
		api.GET("/summary", s.handleSummary)
		api.GET("/trends", s.handleTrends)
		api.GET("/contracts/thresholds", s.handleContractThresholds)
		api.GET("/search", s.handleSearch)
		api.GET("/promises", s.handlePromises)
		api.GET("/periods", s.handlePeriods)
		api.POST("/etl/trigger", s.handleTrigger)
	}
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.clock().UTC().Format(time.RFC3339)})
}

// year returns the requested year or defaults to the current one.
func (s *Server) year(c *gin.Context) (int, bool) {
	raw := c.Query("year")
	if raw == "" {
		return s.clock().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 2200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return 0, false
	}
	return year, true
}

func (s *Server) handleScores(c *gin.Context) {
	year, ok := s.year(c)
	if !ok {
		return
	}
	scores, err := s.engine.BoroughScores(year)
	if err != nil {
		serveEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "scores": scores})
}

func (s *Server) handleSummary(c *gin.Context) {
	year, ok := s.year(c)
	if !ok {
		return
	}
	summary, err := s.engine.CitySummary(year)
	if err != nil {
		serveEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleTrends(c *gin.Context) {
	trends, err := s.engine.Trends()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

func (s *Server) handleContractThresholds(c *gin.Context) {
	year, ok := s.year(c)
	if !ok {
		return
	}
	breakdown, err := s.engine.ContractThresholdBreakdown(year)
	if err != nil {
		serveEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) handleSearch(c *gin.Context) {
	dataset := c.DefaultQuery("dataset", "permits")
	if !storage.Searchable(dataset) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dataset is not searchable"})
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	hits, err := s.search.Search(dataset, query, 50)
	if errors.Is(err, storage.ErrSearchDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dataset": dataset, "hits": hits})
}

func (s *Server) handlePromises(c *gin.Context) {
	promises, err := s.promises.Promises()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"promises": promises})
}

// handlePeriods serves the admin-period range presets. Open-ended
// periods close at the newest application date in the data, or at the
// current time when nothing has been ingested yet.
func (s *Server) handlePeriods(c *gin.Context) {
	dataMax, err := s.periods.MaxApplicationDate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dataMax.IsZero() {
		dataMax = s.clock().UTC()
	}
	presets := jurisdiction.AdminPeriodPresets(s.juris.AdminPeriods, dataMax)
	c.JSON(http.StatusOK, gin.H{"jurisdiction": s.juris.Slug, "periods": presets})
}

type triggerRequest struct {
	Dataset string `json:"dataset"`
	Mode    string `json:"mode"`
}

func (s *Server) handleTrigger(c *gin.Context) {
	// Refuse to run unauthenticated rather than fall open when the
	// deployment forgot to configure a token.
	if s.token == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger token not configured"})
		return
	}
	if !s.authorized(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if req.Dataset == "" {
		req.Dataset = etl.DatasetAll
	}
	if req.Mode == "" {
		req.Mode = string(models.ModeIncremental)
	}

	result, err := s.trigger.Trigger(c.Request.Context(), req.Dataset, models.RunMode(req.Mode))
	switch {
	case err == nil:
	case isRateLimit(err):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case isUnknownDataset(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    err.Error(),
			"datasets": append(s.trigger.Datasets(), etl.DatasetAll),
		})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

func (s *Server) authorized(header string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

func serveEngineError(c *gin.Context, err error) {
	if errors.Is(err, scoring.ErrNoDataForYear) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func isRateLimit(err error) bool {
	return errors.Is(err, etl.ErrRateLimited) || errors.Is(err, etl.ErrAlreadyRunning)
}

func isUnknownDataset(err error) bool {
	return errors.Is(err, etl.ErrUnknownDataset) || errors.Is(err, etl.ErrInvalidMode)
}
