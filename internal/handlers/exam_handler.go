package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
)

// ExamHandler serves authoring, the status machine and exam-wide
// supervision actions.
type ExamHandler struct {
	BaseHandler
	examService        services.ExamService
	otpService         services.OtpService
	studentExamService services.StudentExamService
}

func NewExamHandler(
	examService services.ExamService,
	otpService services.OtpService,
	studentExamService services.StudentExamService,
	logger utils.Logger,
) *ExamHandler {
	return &ExamHandler{
		BaseHandler:        NewBaseHandler(logger),
		examService:        examService,
		otpService:         otpService,
		studentExamService: studentExamService,
	}
}

// CreateExam creates a draft exam
// @Summary Create exam
// @Tags exams
// @Accept json
// @Produce json
// @Param exam body models.CreateExamRequest true "Exam data"
// @Success 201 {object} models.ExamResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	h.LogRequest(c, "Creating exam")

	var req models.CreateExamRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// GetExam returns an exam with its live status
// @Summary Get exam
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} models.ExamResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// ChangeStatus moves an exam between Draft, Published and Finished
// @Summary Change exam status
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param status body models.ChangeExamStatusRequest true "Target status"
// @Success 200 {object} models.ExamResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/status [put]
func (h *ExamHandler) ChangeStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Changing exam status", "exam_id", id)

	var req models.ChangeExamStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	exam, err := h.examService.ChangeStatus(c.Request.Context(), id, req.Status, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

func (h *ExamHandler) AssignSupervisors(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req models.AssignSupervisorsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	supervisors, err := h.examService.AssignSupervisors(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exam_id": id, "supervisors": supervisors})
}

// IssueOtp generates a new entry code, superseding the previous one
// @Summary Issue exam OTP
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param otp body models.IssueOtpRequest true "Validity window"
// @Success 201 {object} models.ExamOtp
// @Router /exams/{id}/otp [post]
func (h *ExamHandler) IssueOtp(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Issuing exam OTP", "exam_id", id)

	var req models.IssueOtpRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	otp, err := h.otpService.IssueOtp(c.Request.Context(), id, req.ValidMinutes, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, otp)
}

func (h *ExamHandler) GetCurrentOtp(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	otp, err := h.otpService.GetCurrentOtp(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, otp)
}

// AddExtraTime extends every in-progress attempt of the exam
// @Summary Add extra time to an exam
// @Tags supervision
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param body body models.AddExamExtraTimeRequest true "Room and minutes"
// @Success 200 {object} models.ExtraTimeResult
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/extra-time [post]
func (h *ExamHandler) AddExtraTime(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Adding exam extra time", "exam_id", id)

	var req models.AddExamExtraTimeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	result, err := h.studentExamService.AddExamExtraTime(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// FinishExam force-submits every in-progress attempt
// @Summary Finish exam
// @Tags supervision
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} models.FinishExamResult
// @Router /exams/{id}/finish [post]
func (h *ExamHandler) FinishExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Finishing exam", "exam_id", id)

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	result, err := h.studentExamService.FinishExam(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
