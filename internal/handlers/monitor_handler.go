package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
)

const defaultHeartbeat = 15 * time.Second

type MonitorHandler struct {
	BaseHandler
	monitoringService services.MonitoringService
	heartbeat         time.Duration
}

func NewMonitorHandler(monitoringService services.MonitoringService, logger utils.Logger) *MonitorHandler {
	return &MonitorHandler{
		BaseHandler:       NewBaseHandler(logger),
		monitoringService: monitoringService,
		heartbeat:         defaultHeartbeat,
	}
}

// GetOverview lists the exams the caller supervises with attempt counts
// @Summary Monitoring overview
// @Tags monitoring
// @Produce json
// @Success 200 {array} models.ExamOverviewItem
// @Failure 403 {object} ErrorResponse
// @Router /monitor/exams [get]
func (h *MonitorHandler) GetOverview(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	items, err := h.monitoringService.GetExamOverview(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// GetDetail lists every attempt of one exam
// @Summary Monitoring detail
// @Tags monitoring
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} models.ExamMonitorDetail
// @Router /monitor/exams/{id} [get]
func (h *MonitorHandler) GetDetail(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	detail, err := h.monitoringService.GetExamMonitorDetail(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Stream pushes the exam's notification group as server-sent events until
// the client disconnects or the service shuts down.
func (h *MonitorHandler) Stream(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	sub, err := h.monitoringService.Subscribe(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	defer sub.Close()

	h.LogRequest(c, "Supervisor stream opened", "exam_id", id, "actor_id", userID)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"dropped": sub.Dropped()})
			return true
		case <-ctx.Done():
			return false
		}
	})

	h.log(c).Info("Supervisor stream closed", "exam_id", id, "actor_id", userID)
}
