package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
)

// ReportHandler serves the stored exam report.
type ReportHandler struct{}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler() *ReportHandler {
	return &ReportHandler{}
}

type reportResponse struct {
	*model.ExamReport
	Percentage float64 `json:"percentage"`
	Answered   int     `json:"answered"`
}

func reportView(rep *model.ExamReport) reportResponse {
	answered := 0
	for _, aq := range rep.AnsweredQuestions {
		if aq.SelectedAnswer != nil {
			answered++
		}
	}
	return reportResponse{ExamReport: rep, Percentage: rep.Percentage(), Answered: answered}
}

// GetReport godoc
// GET /api/v1/report
// Returns the last submitted report.
func (h *ReportHandler) GetReport(c *gin.Context) {
	rep, err := middleware.GetController(c).Report(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, reportView(rep))
}

// ClearReport godoc
// DELETE /api/v1/report
func (h *ReportHandler) ClearReport(c *gin.Context) {
	if err := middleware.GetController(c).ClearReport(c.Request.Context()); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}
