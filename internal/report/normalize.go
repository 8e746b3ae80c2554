// Package report turns the backend's scoring response into the canonical
// exam report.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

var ErrMalformedResponse = errors.New("malformed submission response")

// submitResponse accepts both scoring schemas the backend has shipped.
type submitResponse struct {
	Message            string         `json:"message"`
	Marks              *int           `json:"marks"`
	Score              *int           `json:"score"`
	Total              *int           `json:"total"`
	TotalQuestions     *int           `json:"totalQuestions"`
	Submitted          *int           `json:"total_questions_submitted"`
	InvalidQuestionIDs []int64        `json:"invalid_question_ids"`
	PerQuestion        []questionLine `json:"per_question"`
	Results            []questionLine `json:"results"`
}

type questionLine struct {
	QID            *int64 `json:"q_id"`
	QuestionID     *int64 `json:"question_id"`
	Ans            string `json:"ans"`
	SelectedOption string `json:"selected_option"`
	Valid          *bool  `json:"valid"`
	IsCorrect      *bool  `json:"is_correct"`
	IsCorrectCamel *bool  `json:"isCorrect"`
	Reason         string `json:"reason"`
}

func (l questionLine) id() (int64, bool) {
	switch {
	case l.QID != nil:
		return *l.QID, true
	case l.QuestionID != nil:
		return *l.QuestionID, true
	}
	return 0, false
}

func (l questionLine) correct() (bool, bool) {
	switch {
	case l.IsCorrect != nil:
		return *l.IsCorrect, true
	case l.IsCorrectCamel != nil:
		return *l.IsCorrectCamel, true
	}
	return false, false
}

// Normalize builds the exam report from the raw submission response, the
// question set and the answer ledger. Every question appears in the report;
// unanswered ones carry a nil selection and are never correct. Backend
// verdicts win over locally known correct answers.
func Normalize(raw json.RawMessage, questions []model.Question, ledger model.Ledger, proctoring model.ProctoringResult, submittedAt time.Time) (model.ExamReport, error) {
	var resp submitResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return model.ExamReport{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	verdicts := make(map[int64]bool, len(questions))
	for _, lines := range [][]questionLine{resp.PerQuestion, resp.Results} {
		for _, line := range lines {
			id, ok := line.id()
			if !ok {
				continue
			}
			if c, ok := line.correct(); ok {
				verdicts[id] = c
			}
		}
	}

	answered := make([]model.AnsweredQuestion, 0, len(questions))
	localScore := 0
	for i, q := range questions {
		aq := model.AnsweredQuestion{Question: q}
		if sel, ok := ledger.Selected(i); ok {
			sel := sel
			aq.SelectedAnswer = &sel
			if v, ok := verdicts[q.ID]; ok {
				aq.IsCorrect = v
			} else if q.HasCorrectAnswer() {
				aq.IsCorrect = sel == q.CorrectAnswer
			}
		}
		if aq.IsCorrect {
			localScore++
		}
		answered = append(answered, aq)
	}

	score := localScore
	switch {
	case resp.Marks != nil:
		score = *resp.Marks
	case resp.Score != nil:
		score = *resp.Score
	}

	total := len(questions)
	switch {
	case resp.Total != nil:
		total = *resp.Total
	case resp.TotalQuestions != nil:
		total = *resp.TotalQuestions
	}

	if proctoring.Flags == nil {
		proctoring.Flags = []string{}
	}

	return model.ExamReport{
		Score:             score,
		TotalQuestions:    total,
		ProctoringResult:  proctoring,
		AnsweredQuestions: answered,
		SubmittedAt:       submittedAt.UTC(),
	}, nil
}
