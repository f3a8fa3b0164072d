package contextlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// maxQueryTerms caps the LIKE clauses built for one query.
const maxQueryTerms = 8

// Retrieve returns the most recent recorded context matching any word of
// query, newest first. An empty query returns the most recent entries.
func (s *SQLiteStore) Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > maxQueryTerms {
		terms = terms[:maxQueryTerms]
	}

	cmdWhere, cmdArgs := likeClause(terms, "command", "stdout", "stderr")
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, task_id, command, exit_code, stdout, stderr, duration_seconds, working_directory, created_at
		FROM command_executions`+cmdWhere+`
		ORDER BY created_at DESC
		LIMIT ?
	`, append(cmdArgs, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search command executions: %w", err)
	}
	var snippets []Snippet
	for rows.Next() {
		exec, err := scanCommand(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snippets = append(snippets, Snippet{
			Kind:      "command_execution",
			SessionID: exec.SessionID,
			TaskID:    exec.TaskID,
			Text:      formatCommand(exec),
			CreatedAt: exec.CreatedAt,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating command executions: %w", err)
	}

	inWhere, inArgs := likeClause(terms, "content", "from_role", "to_role")
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, session_id, task_id, from_role, to_role, message_type, content, created_at
		FROM agent_interactions`+inWhere+`
		ORDER BY created_at DESC
		LIMIT ?
	`, append(inArgs, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search agent interactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		snippets = append(snippets, Snippet{
			Kind:      "agent_interaction",
			SessionID: in.SessionID,
			TaskID:    in.TaskID,
			Text:      formatInteraction(in),
			CreatedAt: in.CreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent interactions: %w", err)
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].CreatedAt.After(snippets[j].CreatedAt)
	})
	if len(snippets) > limit {
		snippets = snippets[:limit]
	}
	return snippets, nil
}

// likeClause ORs a case-insensitive substring match of every term over columns.
func likeClause(terms []string, columns ...string) (string, []any) {
	if len(terms) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		for _, col := range columns {
			clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", col))
			args = append(args, pattern)
		}
	}
	return "\n\t\tWHERE " + strings.Join(clauses, " OR "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func formatCommand(exec CommandExecution) string {
	return fmt.Sprintf("Command Execution:\nCommand: %s\nExit Code: %d\nDuration: %.2fs\nWorking Directory: %s\nOutput: %s\nError: %s",
		exec.Command, exec.ExitCode, exec.Duration.Seconds(), exec.WorkingDirectory,
		truncate(exec.Stdout, 500), truncate(exec.Stderr, 500))
}

func formatInteraction(in Interaction) string {
	task := in.TaskID
	if task == "" {
		task = "N/A"
	}
	return fmt.Sprintf("Agent Interaction:\nSession: %s\nFrom: %s -> To: %s\nType: %s\nTask: %s\nContent: %s",
		in.SessionID, in.FromRole, in.ToRole, in.MessageType, task, truncate(in.Content, 1000))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
