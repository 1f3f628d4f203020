package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/service/scheduler"
)

// StartScheduler registers the periodic job
func (h *Handlers) StartScheduler(c *gin.Context) {
	err := h.scheduler.Start()
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		abortWithError(c, http.StatusConflict, "scheduler_running", err.Error())
		return
	case err != nil:
		logrus.Errorf("Failed to start scheduler: %v", err)
		abortWithError(c, http.StatusInternalServerError, "scheduler_error", "Failed to start scheduler")
		return
	}
	c.JSON(http.StatusOK, h.schedulerStatus())
}

func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
		abortWithError(c, http.StatusInternalServerError, "scheduler_error", "Failed to stop scheduler")
		return
	}
	c.JSON(http.StatusOK, h.schedulerStatus())
}

// RunOnce processes every connected mailbox now, outside the schedule
func (h *Handlers) RunOnce(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.RunOnce(c.Request.Context()))
}

func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.schedulerStatus())
}

func (h *Handlers) schedulerStatus() SchedulerStatusResponse {
	resp := SchedulerStatusResponse{Running: h.scheduler.IsRunning(), Status: "stopped"}
	if resp.Running {
		resp.Status = "running"
	}
	resp.NextRun = optionalTime(h.scheduler.GetNextRun())
	resp.LastRun = optionalTime(h.scheduler.GetLastRun())
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
