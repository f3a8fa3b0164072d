package contextlog

import "context"

// Nop discards every record and retrieves nothing.
type Nop struct{}

func (Nop) RecordCommandExecution(context.Context, CommandExecution) error { return nil }
func (Nop) RecordAgentInteraction(context.Context, Interaction) error { return nil }
func (Nop) RecordSession(context.Context, SessionRecord) error { return nil }

func (Nop) Retrieve(context.Context, string, int) ([]Snippet, error) { return nil, nil }
