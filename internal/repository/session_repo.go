package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

// SessionRepository provides data access for session history records.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const selectColumns = `id, mode, shell, command, working_dir, status, exit_code, pid, recording_path, created_at, updated_at`

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, mode, shell, command, working_dir, status, pid, recording_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Mode,
		session.Shell,
		session.Command,
		session.WorkingDir,
		session.State,
		session.PID,
		nullString(session.RecordingPath),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session record by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// List retrieves the most recent session records, newest first. A limit of
// zero or less returns every record.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.Session, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// MarkExited records the end of a session. exitCode is nil when the session
// was killed before its exit status was observed.
func (r *SessionRepository) MarkExited(ctx context.Context, id string, exitCode *int) error {
	query := `
		UPDATE sessions
		SET status = ?, exit_code = COALESCE(?, exit_code), updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStateExited, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// MarkStaleExited marks every record still flagged running as exited. It is
// called at startup: no session outlives the host process that created it.
func (r *SessionRepository) MarkStaleExited(ctx context.Context) (int64, error) {
	query := `UPDATE sessions SET status = ?, updated_at = ? WHERE status = ?`

	result, err := r.db.ExecContext(ctx, query, model.SessionStateExited, time.Now(), model.SessionStateRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale sessions: %w", err)
	}

	return result.RowsAffected()
}

// Delete removes a session record.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// CountByStatus returns the number of records in the given state.
func (r *SessionRepository) CountByStatus(ctx context.Context, state model.SessionState) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE status = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, state).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	var exitCode sql.NullInt64
	var pid sql.NullInt64
	var recordingPath sql.NullString

	err := row.Scan(
		&session.ID,
		&session.Mode,
		&session.Shell,
		&session.Command,
		&session.WorkingDir,
		&session.State,
		&exitCode,
		&pid,
		&recordingPath,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		session.ExitCode = &code
	}
	if pid.Valid {
		session.PID = int(pid.Int64)
	}
	if recordingPath.Valid {
		session.RecordingPath = recordingPath.String
	}

	return session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
