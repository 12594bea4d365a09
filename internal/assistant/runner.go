package assistant

import (
	"context"
	"fmt"
	"time"

	. "github.com/vgrebnev/teleassist/internal/logging"
)

// RunBackend is what the Runner needs from the backend to drive one
// conversation turn.
type RunBackend interface {
	AppendMessage(ctx context.Context, sessionID, text string) error
	StartRun(ctx context.Context, sessionID string) (string, error)
	PollRun(ctx context.Context, sessionID, runID string) (RunState, error)
	CancelRun(ctx context.Context, sessionID, runID string) error
	LatestReply(ctx context.Context, sessionID string) (string, error)
}

// Runner performs the append -> run -> poll -> reply round trip with a
// bounded wait, and cleans the reply before returning it.
type Runner struct {
	backend RunBackend
	cleaner *Cleaner

	timeout      time.Duration
	pollInterval time.Duration
}

// NewRunner creates a runner over the given backend.
func NewRunner(backend RunBackend, cleaner *Cleaner, timeout, pollInterval time.Duration) *Runner {
	return &Runner{
		backend:      backend,
		cleaner:      cleaner,
		timeout:      timeout,
		pollInterval: pollInterval,
	}
}

// Converse sends text into the session and waits for the assistant's
// reply. A run that ends failed/cancelled/expired returns a *RunError;
// exceeding the wait budget cancels the run best-effort and returns a
// *TimeoutError.
func (r *Runner) Converse(ctx context.Context, sessionID, text string) (string, error) {
	if err := r.backend.AppendMessage(ctx, sessionID, text); err != nil {
		return "", err
	}

	runID, err := r.backend.StartRun(ctx, sessionID)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(r.timeout)

	for {
		state, err := r.backend.PollRun(ctx, sessionID, runID)
		if err != nil {
			return "", err
		}

		switch state.Status {
		case RunCompleted:
			reply, err := r.backend.LatestReply(ctx, sessionID)
			if err != nil {
				return "", err
			}
			return r.cleaner.Clean(reply), nil
		case RunFailed, RunCancelled, RunExpired:
			return "", &RunError{Status: state.Status, Detail: state.Detail}
		}

		if time.Now().After(deadline) {
			if cancelErr := r.backend.CancelRun(ctx, sessionID, runID); cancelErr != nil {
				L_warn("assistant: failed to cancel timed out run",
					"run", runID, "error", cancelErr)
			}
			return "", &TimeoutError{After: r.timeout}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("run wait interrupted: %w", ctx.Err())
		case <-time.After(r.pollInterval):
		}
	}
}
