package contextlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CommandExecution is one tool invocation as seen by the context log.
type CommandExecution struct {
	ID               int64
	SessionID        string
	TaskID           string
	Command          string
	ExitCode         int
	Stdout           string
	Stderr           string
	Duration         time.Duration
	WorkingDirectory string
	CreatedAt        time.Time
}

// Interaction is one message exchanged between agent roles.
type Interaction struct {
	ID          int64
	SessionID   string
	TaskID      string
	FromRole    string
	ToRole      string
	MessageType string
	Content     string
	CreatedAt   time.Time
}

// SessionRecord is the durable trace of one orchestration session.
type SessionRecord struct {
	ID        string
	Objective string
	State     string
	Summary   string // JSON summary, set when the session finishes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snippet is a piece of recorded context returned by Retrieve.
type Snippet struct {
	Kind      string // "command_execution" or "agent_interaction"
	SessionID string
	TaskID    string
	Text      string
	CreatedAt time.Time
}

// Recorder accepts context events. Callers treat failures as best-effort:
// they log and continue.
type Recorder interface {
	RecordCommandExecution(ctx context.Context, exec CommandExecution) error
	RecordAgentInteraction(ctx context.Context, in Interaction) error
	RecordSession(ctx context.Context, rec SessionRecord) error
}

// Retriever returns recorded context relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	Retriever

	Commands(ctx context.Context, sessionID string) ([]CommandExecution, error)
	Interactions(ctx context.Context, sessionID string) ([]Interaction, error)
	Session(ctx context.Context, id string) (*SessionRecord, error)
	Sessions(ctx context.Context) ([]SessionRecord, error)

	Close() error
}

// queryTimeout bounds every statement issued by SQLiteStore.
const queryTimeout = 5 * time.Second

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the context log at dbPath.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory store. Each call gets its own
// database, shared only between the store's connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:contextlog-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for writes, one for concurrent readers
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timestamps are stored as RFC 3339 text so ordering works lexically
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
