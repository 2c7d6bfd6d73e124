package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/database"
)

// Schema creates the runs table
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		user_id      TEXT,
		status       TEXT NOT NULL,
		mode         TEXT NOT NULL,
		preset       TEXT NOT NULL DEFAULT '',
		intervals    TEXT NOT NULL,
		settings     JSONB NOT NULL,
		video_path   TEXT NOT NULL,
		audio_path   TEXT NOT NULL DEFAULT '',
		progress     JSONB NOT NULL DEFAULT '{}',
		outputs      JSONB NOT NULL DEFAULT '[]',
		requested    INTEGER NOT NULL DEFAULT 0,
		succeeded    INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0,
		error        JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS runs_user_created_idx ON runs (user_id, created_at DESC)`,
}

const runColumns = `id, user_id, status, mode, preset, intervals, settings, video_path, audio_path,
	progress, outputs, requested, succeeded, failed, error, created_at, started_at, completed_at`

// PostgresStore keeps runs in PostgreSQL
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore creates a run store
func NewPostgresStore(db *database.Postgres) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ RunStore = (*PostgresStore)(nil)

// Migrate creates the runs table if needed
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema...)
}

func (s *PostgresStore) Create(ctx context.Context, run *Run) error {
	settingsJSON, err := json.Marshal(run.Settings)
	if err != nil {
		return err
	}
	progressJSON, _ := json.Marshal(run.Progress)

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO runs (id, user_id, status, mode, preset, intervals, settings, video_path, audio_path, progress, requested, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, nullString(run.UserID), run.Status, string(run.Mode), run.Preset, run.Intervals, settingsJSON,
		run.VideoPath, run.AudioPath, progressJSON, run.Requested, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (s *PostgresStore) List(ctx context.Context, userID, status string, limit int) ([]*Run, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) MarkStarted(ctx context.Context, id string) error {
	return s.exec(ctx, `
		UPDATE runs SET status = $1, started_at = COALESCE(started_at, NOW()) WHERE id = $2
	`, StatusProcessing, id)
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	progressJSON, _ := json.Marshal(progress)
	return s.exec(ctx, `UPDATE runs SET progress = $1 WHERE id = $2`, progressJSON, id)
}

func (s *PostgresStore) Complete(ctx context.Context, id string, c Completion) error {
	outputsJSON, _ := json.Marshal(c.Outputs)
	progressJSON, _ := json.Marshal(Progress{Percent: 100, Done: c.Succeeded + c.Failed, Total: c.Succeeded + c.Failed})
	return s.exec(ctx, `
		UPDATE runs
		SET status = $1, outputs = $2, progress = $3, requested = $4, succeeded = $5, failed = $6, completed_at = $7
		WHERE id = $8
	`, StatusCompleted, outputsJSON, progressJSON, c.Requested, c.Succeeded, c.Failed, time.Now(), id)
}

func (s *PostgresStore) Fail(ctx context.Context, id string, runErr RunError) error {
	errorJSON, _ := json.Marshal(runErr)
	return s.exec(ctx, `
		UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4
	`, StatusFailed, errorJSON, time.Now(), id)
}

func (s *PostgresStore) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := s.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var userID *string
	var mode string
	var settingsJSON, progressJSON, outputsJSON, errorJSON []byte

	err := row.Scan(
		&run.ID, &userID, &run.Status, &mode, &run.Preset, &run.Intervals, &settingsJSON,
		&run.VideoPath, &run.AudioPath, &progressJSON, &outputsJSON,
		&run.Requested, &run.Succeeded, &run.Failed, &errorJSON,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID != nil {
		run.UserID = *userID
	}
	run.Mode = montage.Mode(mode)
	json.Unmarshal(settingsJSON, &run.Settings)
	json.Unmarshal(progressJSON, &run.Progress)
	json.Unmarshal(outputsJSON, &run.Outputs)
	if errorJSON != nil {
		json.Unmarshal(errorJSON, &run.Error)
	}
	return &run, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
