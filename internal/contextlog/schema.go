package contextlog

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		objective TEXT NOT NULL,
		state TEXT NOT NULL,
		summary TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS command_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		command TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		stdout TEXT,
		stderr TEXT,
		duration_seconds REAL NOT NULL,
		working_directory TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_command_executions_session
		ON command_executions(session_id, created_at);

	CREATE TABLE IF NOT EXISTS agent_interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		task_id TEXT,
		from_role TEXT NOT NULL,
		to_role TEXT NOT NULL,
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agent_interactions_session
		ON agent_interactions(session_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
