package contextlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotRecorded is returned by Session for unknown ids.
var ErrSessionNotRecorded = errors.New("session not recorded")

// RecordCommandExecution appends one tool invocation.
func (s *SQLiteStore) RecordCommandExecution(ctx context.Context, exec CommandExecution) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_executions
			(session_id, task_id, command, exit_code, stdout, stderr, duration_seconds, working_directory, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.SessionID, exec.TaskID, exec.Command, exec.ExitCode, exec.Stdout, exec.Stderr,
		exec.Duration.Seconds(), exec.WorkingDirectory, formatTime(exec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record command execution: %w", err)
	}
	return nil
}

// RecordAgentInteraction appends one inter-agent message.
func (s *SQLiteStore) RecordAgentInteraction(ctx context.Context, in Interaction) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	if in.MessageType == "" {
		in.MessageType = "task_output"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_interactions
			(session_id, task_id, from_role, to_role, message_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, in.SessionID, in.TaskID, in.FromRole, in.ToRole, in.MessageType, in.Content, formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record agent interaction: %w", err)
	}
	return nil
}

// RecordSession upserts a session record.
// Uses ON CONFLICT so the same call covers creation and every state change.
func (s *SQLiteStore) RecordSession(ctx context.Context, rec SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, objective, state, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			summary = COALESCE(NULLIF(excluded.summary, ''), sessions.summary),
			updated_at = excluded.updated_at
	`, rec.ID, rec.Objective, rec.State, rec.Summary, formatTime(rec.CreatedAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Commands returns the command executions of a session in recording order.
func (s *SQLiteStore) Commands(ctx context.Context, sessionID string) ([]CommandExecution, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, task_id, command, exit_code, stdout, stderr, duration_seconds, working_directory, created_at
		FROM command_executions
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query command executions: %w", err)
	}
	defer rows.Close()

	var out []CommandExecution
	for rows.Next() {
		exec, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating command executions: %w", err)
	}
	return out, nil
}

func scanCommand(rows *sql.Rows) (CommandExecution, error) {
	var exec CommandExecution
	var stdout, stderr, workDir sql.NullString
	var seconds float64
	var created string
	if err := rows.Scan(&exec.ID, &exec.SessionID, &exec.TaskID, &exec.Command, &exec.ExitCode,
		&stdout, &stderr, &seconds, &workDir, &created); err != nil {
		return exec, fmt.Errorf("failed to scan command execution: %w", err)
	}
	exec.Stdout = stdout.String
	exec.Stderr = stderr.String
	exec.WorkingDirectory = workDir.String
	exec.Duration = time.Duration(seconds * float64(time.Second))
	exec.CreatedAt = parseTime(created)
	return exec, nil
}

// Interactions returns the agent interactions of a session in recording order.
func (s *SQLiteStore) Interactions(ctx context.Context, sessionID string) ([]Interaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, task_id, from_role, to_role, message_type, content, created_at
		FROM agent_interactions
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent interactions: %w", err)
	}
	return out, nil
}

func scanInteraction(rows *sql.Rows) (Interaction, error) {
	var in Interaction
	var taskID sql.NullString
	var created string
	if err := rows.Scan(&in.ID, &in.SessionID, &taskID, &in.FromRole, &in.ToRole,
		&in.MessageType, &in.Content, &created); err != nil {
		return in, fmt.Errorf("failed to scan agent interaction: %w", err)
	}
	in.TaskID = taskID.String
	in.CreatedAt = parseTime(created)
	return in, nil
}

// Session returns one session record.
func (s *SQLiteStore) Session(ctx context.Context, id string) (*SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec SessionRecord
	var summary sql.NullString
	var created, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, objective, state, summary, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Objective, &rec.State, &summary, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotRecorded, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	rec.Summary = summary.String
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

// Sessions lists all session records, newest first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, objective, state, summary, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var summary sql.NullString
		var created, updated string
		if err := rows.Scan(&rec.ID, &rec.Objective, &rec.State, &summary, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.Summary = summary.String
		rec.CreatedAt = parseTime(created)
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}
