package orchestrator

import (
	"context"

	"github.com/aristath/goalrunner/internal/scheduler"
)

// Recovery is a policy's verdict on a failed task. A non-empty Output marks
// the task completed; otherwise Revise sends it back through needs_revision
// for another attempt; otherwise the session aborts.
type Recovery struct {
	Output scheduler.Output
	Revise bool
}

// RecoveryPolicy decides what happens to a failed task. attempt counts the
// failures of this task so far, starting at 1.
type RecoveryPolicy interface {
	Recover(ctx context.Context, task *scheduler.Task, attempt int, cause error) Recovery
}

// RecoveryFunc adapts a function to RecoveryPolicy.
type RecoveryFunc func(ctx context.Context, task *scheduler.Task, attempt int, cause error) Recovery

func (f RecoveryFunc) Recover(ctx context.Context, task *scheduler.Task, attempt int, cause error) Recovery {
	return f(ctx, task, attempt, cause)
}

// NoRecovery makes every task failure fatal.
type NoRecovery struct{}

func (NoRecovery) Recover(context.Context, *scheduler.Task, int, error) Recovery {
	return Recovery{}
}

// RetryRecovery re-queues a failed task until it has failed Attempts times.
type RetryRecovery struct {
	Attempts int
}

func (r RetryRecovery) Recover(ctx context.Context, _ *scheduler.Task, attempt int, _ error) Recovery {
	if ctx.Err() != nil {
		return Recovery{}
	}
	return Recovery{Revise: attempt < r.Attempts}
}
