package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrReportNotFound is returned when the slot holds no report.
var ErrReportNotFound = errors.New("report not found")

// ReportRepository persists the exam report in a fixed slot. Save replaces
// whatever the slot held.
type ReportRepository interface {
	Save(ctx context.Context, slot string, r *model.ExamReport) error
	Load(ctx context.Context, slot string) (*model.ExamReport, error)
	Clear(ctx context.Context, slot string) error
}

func encodeReport(r *model.ExamReport) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

func decodeReport(data []byte) (*model.ExamReport, error) {
	r := &model.ExamReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
