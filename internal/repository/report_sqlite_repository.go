package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// SQLiteReportRepository keeps the report in the portal's local database.
type SQLiteReportRepository struct {
	db *sql.DB
}

// NewSQLiteReportRepository creates a new SQLiteReportRepository.
func NewSQLiteReportRepository(db *sql.DB) *SQLiteReportRepository {
	return &SQLiteReportRepository{db: db}
}

func (r *SQLiteReportRepository) Save(ctx context.Context, slot string, rep *model.ExamReport) error {
	payload, err := encodeReport(rep)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO exam_reports (slot, payload, score, total_questions, suspicion_level, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slot) DO UPDATE SET
		   payload = excluded.payload,
		   score = excluded.score,
		   total_questions = excluded.total_questions,
		   suspicion_level = excluded.suspicion_level,
		   submitted_at = excluded.submitted_at,
		   updated_at = excluded.updated_at`,
		slot, string(payload), rep.Score, rep.TotalQuestions,
		string(rep.ProctoringResult.OverallSuspicionLevel),
		rep.SubmittedAt.Unix(), time.Now().Unix(),
	)
	return err
}

func (r *SQLiteReportRepository) Load(ctx context.Context, slot string) (*model.ExamReport, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM exam_reports WHERE slot = ?`, slot,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport([]byte(payload))
}

func (r *SQLiteReportRepository) Clear(ctx context.Context, slot string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM exam_reports WHERE slot = ?`, slot)
	return err
}
