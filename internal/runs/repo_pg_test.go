package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreateWritesAllColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()
	run := AnalysisRun{
		ID:          "run-1",
		Org:         "acme",
		Contributor: "octocat",
		Year:        2024,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO analysis_runs").
		WithArgs(
			run.ID,
			run.Org,
			run.Contributor,
			run.Year,
			run.Status,
			run.Phase,
			sqlmock.AnyArg(), // progress
			sqlmock.AnyArg(), // options
			nil,              // ai_confirmation
			nil,              // error
			nil,              // started_at
			nil,              // finished_at
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateMapsDuplicateToActiveRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("INSERT INTO analysis_runs").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "analysis_runs_active_uniq"`))

	err = repo.Create(context.Background(), AnalysisRun{ID: "run-2", Org: "acme", Contributor: "octocat", Year: 2024, Status: StatusQueued})
	if !errors.Is(err, ErrActiveRunExists) {
		t.Fatalf("expected ErrActiveRunExists, got %v", err)
	}
}

func TestPGRepoUpdateMissingRunReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE analysis_runs").
		WithArgs("run-missing", StatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SetStatus(context.Background(), "run-missing", StatusPaused)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
