package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-txn-ingest-go/internal/config"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/service"
	"mail-txn-ingest-go/internal/service/scheduler"
)

// TokenManager is the OAuth surface the handlers need
type TokenManager interface {
	Providers() []model.Provider
	AuthorizationURL(userID string, provider model.Provider) (string, error)
	ExchangeCode(ctx context.Context, provider model.Provider, code, state string) (*model.OAuthToken, string, error)
	ValidAccessToken(ctx context.Context, userID string, provider model.Provider) (string, error)
	Revoke(ctx context.Context, userID string, provider model.Provider) (model.PurgeResult, error)
}

// Ingester runs the pipeline
type Ingester interface {
	ProcessEmails(ctx context.Context, userID string, provider model.Provider, accessToken string, daysBack int) (*service.ProcessResult, error)
	SupportedBanks() []string
}

// RecordLister pages through EmailRecords
type RecordLister interface {
	ListEmailRecords(ctx context.Context, userID string, page, limit int) ([]model.EmailRecord, int64, error)
}

// SchedulerControl is the scheduler as seen by the admin endpoints
type SchedulerControl interface {
	Start() error
	Stop() error
	IsRunning() bool
	GetNextRun() time.Time
	GetLastRun() time.Time
	RunOnce(ctx context.Context) scheduler.RunSummary
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	tokens    TokenManager
	ingest    Ingester
	records   RecordLister
	scheduler SchedulerControl
	gatherer  prometheus.Gatherer
	oauthCfg  config.OAuthConfig
	daysBack  int
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, tokens TokenManager, ingest Ingester, records RecordLister, sched SchedulerControl,
	gatherer prometheus.Gatherer, oauthCfg config.OAuthConfig, daysBack int) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		db:        db,
		tokens:    tokens,
		ingest:    ingest,
		records:   records,
		scheduler: sched,
		gatherer:  gatherer,
		oauthCfg:  oauthCfg,
		daysBack:  daysBack,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/oauth/:provider/authorize", h.Authorize)
		api.GET("/oauth/:provider/callback", h.Callback)

		api.POST("/users/:user_id/providers/:provider/process", h.ProcessEmails)
		api.DELETE("/users/:user_id/providers/:provider", h.Disconnect)
		api.GET("/users/:user_id/email-records", h.GetEmailRecords)

		api.GET("/banks", h.GetBanks)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Providers: h.tokens.Providers(),
		Metrics:   make(map[string]string),
	}

	if err := h.db.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil && h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}
	if h.scheduler != nil {
		if last := h.scheduler.GetLastRun(); !last.IsZero() {
			response.Metrics["last_run"] = last.Format(time.RFC3339)
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func abortWithError(c *gin.Context, code int, errKey, message string) {
	c.JSON(code, ErrorResponse{
		Error:   errKey,
		Message: message,
		Code:    code,
	})
}

// providerParam parses the :provider path segment, writing a 400 when unknown
func providerParam(c *gin.Context) (model.Provider, bool) {
	provider, ok := model.ParseProvider(c.Param("provider"))
	if !ok {
		abortWithError(c, http.StatusBadRequest, "invalid_provider", "Provider must be gmail or outlook")
		return "", false
	}
	return provider, true
}
