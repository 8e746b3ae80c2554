package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-portal/internal/model"
)

// PostgresReportRepository keeps reports in the exam_reports table, for
// proctored labs where the portal machines share one database.
type PostgresReportRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReportRepository creates a new PostgresReportRepository.
func NewPostgresReportRepository(pool *pgxpool.Pool) *PostgresReportRepository {
	return &PostgresReportRepository{pool: pool}
}

func (r *PostgresReportRepository) Save(ctx context.Context, slot string, rep *model.ExamReport) error {
	payload, err := encodeReport(rep)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_reports (slot, payload, score, total_questions, suspicion_level, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (slot) DO UPDATE SET
		   payload = EXCLUDED.payload,
		   score = EXCLUDED.score,
		   total_questions = EXCLUDED.total_questions,
		   suspicion_level = EXCLUDED.suspicion_level,
		   submitted_at = EXCLUDED.submitted_at,
		   updated_at = NOW()`,
		slot, payload, rep.Score, rep.TotalQuestions,
		string(rep.ProctoringResult.OverallSuspicionLevel), rep.SubmittedAt,
	)
	return err
}

func (r *PostgresReportRepository) Load(ctx context.Context, slot string) (*model.ExamReport, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM exam_reports WHERE slot = $1`, slot,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(payload)
}

func (r *PostgresReportRepository) Clear(ctx context.Context, slot string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exam_reports WHERE slot = $1`, slot)
	return err
}
