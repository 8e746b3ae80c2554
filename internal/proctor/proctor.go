// Package proctor analyzes exam recordings for suspicious behavior.
package proctor

import (
	"context"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Input is what an analyzer sees of a finished attempt. VideoDataURI may be
// empty when no recording exists.
type Input struct {
	VideoDataURI     string `json:"videoDataUri"`
	ExamDetails      string `json:"examDetails"`
	CandidateDetails string `json:"candidateDetails"`
}

// Analyzer produces the proctoring verdict for a recording.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (model.ProctoringResult, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, in Input) (model.ProctoringResult, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, in Input) (model.ProctoringResult, error) {
	return f(ctx, in)
}

const mockSummary = "AI proctoring analysis completed successfully. The recording was reviewed for " +
	"suspicious activity including unauthorized assistance, multiple faces, and unusual behavior " +
	"patterns. No significant violations were detected during the examination period."

// MockAnalyzer always reports a clean attempt.
type MockAnalyzer struct{}

func (MockAnalyzer) Analyze(ctx context.Context, in Input) (model.ProctoringResult, error) {
	return model.ProctoringResult{
		Summary:               mockSummary,
		Flags:                 []string{},
		OverallSuspicionLevel: model.SuspicionLow,
	}, nil
}
