package proctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
)

var ErrInvalidVerdict = errors.New("analyzer returned an invalid suspicion level")

// FailedResult is substituted when analysis cannot complete.
func FailedResult() model.ProctoringResult {
	return model.ProctoringResult{
		Summary:               "Proctoring analysis could not be completed; the attempt is held for manual review.",
		Flags:                 []string{model.FlagAnalysisFailed},
		OverallSuspicionLevel: model.SuspicionHigh,
	}
}

// Safe never fails: errors, panics and malformed verdicts from the wrapped
// analyzer become FailedResult.
type Safe struct {
	inner Analyzer
	log   zerolog.Logger
}

func NewSafe(inner Analyzer, log zerolog.Logger) *Safe {
	return &Safe{inner: inner, log: log.With().Str("component", "proctor").Logger()}
}

func (s *Safe) Analyze(ctx context.Context, in Input) (result model.ProctoringResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("analyzer panicked")
			result, err = FailedResult(), nil
		}
	}()

	res, aerr := s.inner.Analyze(ctx, in)
	if aerr == nil && !res.OverallSuspicionLevel.Valid() {
		aerr = fmt.Errorf("%w: %q", ErrInvalidVerdict, res.OverallSuspicionLevel)
	}
	if aerr != nil {
		s.log.Error().Err(aerr).Msg("proctoring analysis failed")
		return FailedResult(), nil
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}
	return res, nil
}
