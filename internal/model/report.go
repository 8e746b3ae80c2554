package model

import "time"

// SuspicionLevel is the coarse output of the proctoring analysis.
type SuspicionLevel string

const (
	SuspicionLow    SuspicionLevel = "LOW"
	SuspicionMedium SuspicionLevel = "MEDIUM"
	SuspicionHigh   SuspicionLevel = "HIGH"
)

// Rank orders levels; unknown levels rank highest.
func (l SuspicionLevel) Rank() int {
	switch l {
	case SuspicionLow:
		return 0
	case SuspicionMedium:
		return 1
	default:
		return 2
	}
}

// Valid reports whether l is one of the known levels.
func (l SuspicionLevel) Valid() bool {
	return l == SuspicionLow || l == SuspicionMedium || l == SuspicionHigh
}

// FlagAnalysisFailed is raised when the analyzer could not produce a result.
const FlagAnalysisFailed = "Analysis Failed"

// ProctoringResult is the analyzer verdict carried in the report.
type ProctoringResult struct {
	Summary               string         `json:"summary"`
	Flags                 []string       `json:"flags"`
	OverallSuspicionLevel SuspicionLevel `json:"overallSuspicionLevel"`
	RecordingRef          string         `json:"recordingRef,omitempty"`
}

// AnsweredQuestion is one per-question line of the report.
type AnsweredQuestion struct {
	Question       Question `json:"question"`
	SelectedAnswer *int     `json:"selectedAnswer"`
	IsCorrect      bool     `json:"isCorrect"`
}

// ExamReport is written once at submission and read by the report view.
type ExamReport struct {
	Score             int                `json:"score"`
	TotalQuestions    int                `json:"totalQuestions"`
	ProctoringResult  ProctoringResult   `json:"proctoringResult"`
	AnsweredQuestions []AnsweredQuestion `json:"answeredQuestions"`
	SubmittedAt       time.Time          `json:"submittedAt"`
}

// Percentage returns the score as a percentage of total questions.
func (r ExamReport) Percentage() float64 {
	if r.TotalQuestions == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.TotalQuestions) * 100
}
