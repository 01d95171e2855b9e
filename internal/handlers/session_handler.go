package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
)

// SessionHandler serves student attempts. The attempt id in the path wins
// over any id in the body.
type SessionHandler struct {
	BaseHandler
	studentExamService services.StudentExamService
	gradingService     services.GradingService
}

func NewSessionHandler(
	studentExamService services.StudentExamService,
	gradingService services.GradingService,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:        NewBaseHandler(logger),
		studentExamService: studentExamService,
		gradingService:     gradingService,
	}
}

// AccessExam admits a student with the exam's current OTP
// @Summary Access exam
// @Description Creates or resumes the caller's attempt
// @Tags sessions
// @Accept json
// @Produce json
// @Param body body models.AccessExamRequest true "Exam and OTP"
// @Success 200 {object} models.StudentExamResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions/access [post]
func (h *SessionHandler) AccessExam(c *gin.Context) {
	h.LogRequest(c, "Accessing exam")

	var req models.AccessExamRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.studentExamService.AccessExam(c.Request.Context(), &req, userID, clientContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.studentExamService.GetStudentExam(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SaveAnswers stores answers without submitting
// @Summary Save answers
// @Tags sessions
// @Accept json
// @Param id path uint true "Student exam ID"
// @Param body body models.SaveAnswersRequest true "Answers"
// @Success 200 {object} SuccessResponse
// @Failure 410 {object} ErrorResponse
// @Router /sessions/{id}/answers [put]
func (h *SessionHandler) SaveAnswers(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req models.SaveAnswersRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.StudentExamID = id

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.studentExamService.SaveAnswerTemporary(c.Request.Context(), &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Answers saved"})
}

// Submit closes the attempt and scores it
// @Summary Submit exam
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Student exam ID"
// @Param body body models.SubmitExamRequest true "Final answers"
// @Success 200 {object} models.StudentExamResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Submitting exam", "student_exam_id", id)

	var req models.SubmitExamRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.StudentExamID = id

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.studentExamService.SubmitExam(c.Request.Context(), &req, userID, clientContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

func (h *SessionHandler) AddExtraTime(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Adding student extra time", "student_exam_id", id)

	var req models.AddStudentExtraTimeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.studentExamService.AddStudentExtraTime(c.Request.Context(), id, req.ExtraMinutes, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// MarkEssay records manual scores for an essay attempt
// @Summary Grade essay attempt
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Student exam ID"
// @Param body body models.MarkEssayRequest true "Per-question scores"
// @Success 200 {object} models.StudentExamResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/grade [post]
func (h *SessionHandler) MarkEssay(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Grading essay attempt", "student_exam_id", id)

	var req models.MarkEssayRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.StudentExamID = id

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.gradingService.MarkEssay(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}
