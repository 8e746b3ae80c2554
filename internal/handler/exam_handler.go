package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// ExamHandler exposes the candidate's exam session.
type ExamHandler struct {
	portal *service.PortalService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(portal *service.PortalService) *ExamHandler {
	return &ExamHandler{portal: portal}
}

// StartExam godoc
// POST /api/v1/exam/start
// Requests camera access, loads the questions and starts recording and the countdown.
func (h *ExamHandler) StartExam(c *gin.Context) {
	ctrl := middleware.GetController(c)

	var req model.StartExamRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	if err := h.portal.StartExam(c.Request.Context(), ctrl, req.CandidateDetails); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// GetState godoc
// GET /api/v1/exam/state
func (h *ExamHandler) GetState(c *gin.Context) {
	response.Success(c, http.StatusOK, middleware.GetController(c).Snapshot())
}

// SelectAnswer godoc
// PUT /api/v1/exam/answer
// Records the option for the current question without moving.
func (h *ExamHandler) SelectAnswer(c *gin.Context) {
	ctrl := middleware.GetController(c)

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SelectAnswer(req.Option()); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Next godoc
// POST /api/v1/exam/next
func (h *ExamHandler) Next(c *gin.Context) {
	h.navigate(c, (*session.Controller).Next)
}

// Prev godoc
// POST /api/v1/exam/prev
func (h *ExamHandler) Prev(c *gin.Context) {
	h.navigate(c, (*session.Controller).Prev)
}

// GoTo godoc
// POST /api/v1/exam/goto
func (h *ExamHandler) GoTo(c *gin.Context) {
	var req model.GoToRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.navigate(c, func(ctrl *session.Controller) error { return ctrl.GoTo(*req.Index) })
}

func (h *ExamHandler) navigate(c *gin.Context, move func(*session.Controller) error) {
	ctrl := middleware.GetController(c)
	if err := move(ctrl); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Submit godoc
// POST /api/v1/exam/submit
// Stops recording, runs the proctoring analysis and submits the answers.
func (h *ExamHandler) Submit(c *gin.Context) {
	rep, err := h.portal.Submit(c.Request.Context(), middleware.GetController(c))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, reportView(rep))
}

// CloseExam godoc
// DELETE /api/v1/exam
// Abandons the attempt and releases the camera.
func (h *ExamHandler) CloseExam(c *gin.Context) {
	ctrl := middleware.GetController(c)
	if err := ctrl.Close(); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}
