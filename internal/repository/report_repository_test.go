package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/model"
)

func sampleReport() *model.ExamReport {
	sel := 2
	return &model.ExamReport{
		Score:          1,
		TotalQuestions: 2,
		ProctoringResult: model.ProctoringResult{
			Summary:               "Second face visible at 04:12.",
			Flags:                 []string{"Presence of other individuals"},
			OverallSuspicionLevel: model.SuspicionHigh,
			RecordingRef:          "s3://proctoring-recordings/recordings/2026-03-01/a.webm",
		},
		AnsweredQuestions: []model.AnsweredQuestion{
			{
				Question:       model.Question{ID: 1, Text: "2+2?", Options: []string{"3", "5", "4"}, CorrectAnswer: 2},
				SelectedAnswer: &sel,
				IsCorrect:      true,
			},
			{
				Question: model.Question{ID: 2, Text: "Largest planet?", Options: []string{"Mars", "Jupiter"}, CorrectAnswer: model.NoCorrectAnswer},
			},
		},
		SubmittedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func assertSameReport(t *testing.T, got, want *model.ExamReport) {
	t.Helper()
	if got.Score != want.Score || got.TotalQuestions != want.TotalQuestions {
		t.Fatalf("score = %d/%d, want %d/%d", got.Score, got.TotalQuestions, want.Score, want.TotalQuestions)
	}
	if got.ProctoringResult.OverallSuspicionLevel != want.ProctoringResult.OverallSuspicionLevel ||
		got.ProctoringResult.RecordingRef != want.ProctoringResult.RecordingRef ||
		len(got.ProctoringResult.Flags) != len(want.ProctoringResult.Flags) {
		t.Fatalf("proctoring = %+v, want %+v", got.ProctoringResult, want.ProctoringResult)
	}
	if len(got.AnsweredQuestions) != len(want.AnsweredQuestions) {
		t.Fatalf("answered = %d, want %d", len(got.AnsweredQuestions), len(want.AnsweredQuestions))
	}
	first := got.AnsweredQuestions[0]
	if first.SelectedAnswer == nil || *first.SelectedAnswer != 2 || !first.IsCorrect || first.Question.CorrectAnswer != 2 {
		t.Fatalf("first answer = %+v", first)
	}
	second := got.AnsweredQuestions[1]
	if second.SelectedAnswer != nil || second.IsCorrect || second.Question.CorrectAnswer != model.NoCorrectAnswer {
		t.Fatalf("second answer = %+v", second)
	}
	if !got.SubmittedAt.Equal(want.SubmittedAt) {
		t.Fatalf("submittedAt = %v, want %v", got.SubmittedAt, want.SubmittedAt)
	}
}

// exerciseRepository checks the fixed-slot contract shared by every store.
func exerciseRepository(t *testing.T, repo ReportRepository) {
	ctx := context.Background()
	const slot = "examReport"

	if _, err := repo.Load(ctx, slot); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("Load(empty) error = %v, want ErrReportNotFound", err)
	}

	want := sampleReport()
	if err := repo.Save(ctx, slot, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := repo.Load(ctx, slot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameReport(t, got, want)

	// A second save replaces the slot.
	want.Score = 2
	if err := repo.Save(ctx, slot, want); err != nil {
		t.Fatalf("Save(replace) error = %v", err)
	}
	got, err = repo.Load(ctx, slot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Score != 2 {
		t.Fatalf("Score after replace = %d, want 2", got.Score)
	}

	if err := repo.Clear(ctx, slot); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := repo.Load(ctx, slot); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("Load(cleared) error = %v, want ErrReportNotFound", err)
	}
	if err := repo.Clear(ctx, slot); err != nil {
		t.Fatalf("Clear(empty) error = %v", err)
	}
}

func TestSQLiteReportRepository(t *testing.T) {
	db, err := database.NewSQLite(context.Background(), "file::memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	exerciseRepository(t, NewSQLiteReportRepository(db))
}

func TestSQLiteReportRepository_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.db")
	ctx := context.Background()

	db, err := database.NewSQLite(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := NewSQLiteReportRepository(db).Save(ctx, "examReport", sampleReport()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	db.Close()

	// The report survives a portal restart.
	db, err = database.NewSQLite(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()
	got, err := NewSQLiteReportRepository(db).Load(ctx, "examReport")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameReport(t, got, sampleReport())
}

func TestRedisReportRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	exerciseRepository(t, NewRedisReportRepository(rdb, time.Hour))
}

func TestRedisReportRepository_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	repo := NewRedisReportRepository(rdb, time.Minute)
	if err := repo.Save(ctx, "examReport", sampleReport()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := repo.Load(ctx, "examReport"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("Load(expired) error = %v, want ErrReportNotFound", err)
	}
}

func TestPostgresReportRepository(t *testing.T) {
	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	up, err := os.ReadFile("../../migrations/000001_create_exam_reports.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	raw, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err = raw.Exec(ctx, string(up))
	raw.Close()
	if err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	pool, err := database.NewPostgresPool(ctx, dsn, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `DELETE FROM exam_reports WHERE slot = 'examReport'`); err != nil {
		t.Fatalf("reset table: %v", err)
	}

	exerciseRepository(t, NewPostgresReportRepository(pool))
}
