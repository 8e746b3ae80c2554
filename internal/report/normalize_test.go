package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

func twentyQuestions() []model.Question {
	qs := make([]model.Question, 20)
	for i := range qs {
		qs[i] = model.Question{
			ID:            int64(i + 1),
			Text:          fmt.Sprintf("Question %d", i+1),
			Options:       []string{"w", "x", "y", "z"},
			CorrectAnswer: model.NoCorrectAnswer,
		}
	}
	return qs
}

// perQuestionResponse grades every submitted answer, with A as the only
// correct letter.
func perQuestionResponse(req model.SubmitAnswersRequest) json.RawMessage {
	type line struct {
		QID       int64  `json:"q_id"`
		Ans       string `json:"ans"`
		Valid     bool   `json:"valid"`
		IsCorrect bool   `json:"is_correct"`
		Reason    string `json:"reason"`
	}
	marks := 0
	lines := make([]line, 0, len(req.Answers))
	for _, a := range req.Answers {
		ok := a.Answer == "A"
		if ok {
			marks++
		}
		lines = append(lines, line{QID: a.QuestionID, Ans: a.Answer, Valid: true, IsCorrect: ok})
	}
	raw, _ := json.Marshal(map[string]any{
		"message":                   "Submission recorded.",
		"marks":                     marks,
		"total_questions_submitted": len(req.Answers),
		"invalid_question_ids":      []int64{},
		"per_question":              lines,
	})
	return raw
}

func TestNormalize_TwentyQuestionsOneUnanswered(t *testing.T) {
	qs := twentyQuestions()
	ledger := model.NewLedger(len(qs))
	for i := range ledger {
		ledger[i] = i % 4
	}
	ledger[18] = model.Unanswered

	req := model.BuildSubmission(qs, ledger)
	if len(req.Answers) != 19 {
		t.Fatalf("submitted %d answers, want 19", len(req.Answers))
	}
	for _, a := range req.Answers {
		if a.QuestionID == 19 {
			t.Fatal("unanswered question 19 was submitted")
		}
	}

	submittedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	proctoring := model.ProctoringResult{Summary: "clean", OverallSuspicionLevel: model.SuspicionLow}
	rep, err := Normalize(perQuestionResponse(req), qs, ledger, proctoring, submittedAt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if rep.TotalQuestions != 20 {
		t.Fatalf("TotalQuestions = %d, want 20", rep.TotalQuestions)
	}
	if len(rep.AnsweredQuestions) != 20 {
		t.Fatalf("AnsweredQuestions = %d, want 20", len(rep.AnsweredQuestions))
	}
	q19 := rep.AnsweredQuestions[18]
	if q19.Question.ID != 19 || q19.SelectedAnswer != nil || q19.IsCorrect {
		t.Fatalf("q19 = %+v, want unanswered and incorrect", q19)
	}
	// Indexes 0,4,8,12,16 selected A.
	if rep.Score != 5 {
		t.Fatalf("Score = %d, want 5", rep.Score)
	}
	if !rep.AnsweredQuestions[4].IsCorrect || rep.AnsweredQuestions[5].IsCorrect {
		t.Fatal("per-question verdicts not applied")
	}
	if !rep.SubmittedAt.Equal(submittedAt) || rep.ProctoringResult.Flags == nil {
		t.Fatalf("report = %+v", rep)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if !strings.Contains(string(data), `"selectedAnswer":null`) {
		t.Fatalf("unanswered selection not rendered as null: %s", data)
	}
}

func TestNormalize_AlternateSchema(t *testing.T) {
	qs := twentyQuestions()[:3]
	ledger := model.Ledger{1, 2, model.Unanswered}
	raw := json.RawMessage(`{"score":1,"total":3,"results":[
		{"question_id":1,"selected_option":"B","isCorrect":true},
		{"question_id":2,"selected_option":"C","isCorrect":false}
	]}`)

	rep, err := Normalize(raw, qs, ledger, model.ProctoringResult{OverallSuspicionLevel: model.SuspicionLow}, time.Now())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rep.Score != 1 || rep.TotalQuestions != 3 {
		t.Fatalf("score/total = %d/%d, want 1/3", rep.Score, rep.TotalQuestions)
	}
	if !rep.AnsweredQuestions[0].IsCorrect || rep.AnsweredQuestions[1].IsCorrect {
		t.Fatalf("verdicts = %+v", rep.AnsweredQuestions)
	}
	if sel := rep.AnsweredQuestions[1].SelectedAnswer; sel == nil || *sel != 2 {
		t.Fatalf("selection of q2 = %v, want 2", sel)
	}
}

func TestNormalize_LocalGrading(t *testing.T) {
	qs := []model.Question{
		{ID: 1, Options: []string{"a", "b"}, CorrectAnswer: 1},
		{ID: 2, Options: []string{"a", "b"}, CorrectAnswer: 0},
		{ID: 3, Options: []string{"a", "b"}, CorrectAnswer: 0},
	}
	ledger := model.Ledger{1, 1, model.Unanswered}

	rep, err := Normalize(json.RawMessage(`{"message":"ok"}`), qs, ledger, model.ProctoringResult{}, time.Now())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rep.Score != 1 {
		t.Fatalf("Score = %d, want 1", rep.Score)
	}
	if rep.AnsweredQuestions[2].IsCorrect {
		t.Fatal("unanswered question graded correct")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := Normalize(json.RawMessage(`[1,2`), nil, nil, model.ProctoringResult{}, time.Now())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}
