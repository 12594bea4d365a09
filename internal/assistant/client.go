package assistant

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/vgrebnev/teleassist/internal/logging"
)

// RunStatus is the adapter-level view of a backend run's state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	RunExpired   RunStatus = "expired"
)

// RunState is the result of polling a run.
type RunState struct {
	Status RunStatus
	Detail string // last error detail for failed runs
}

// Client talks to the OpenAI Assistants API. It implements both the
// session registry's Backend interface and the Runner's RunBackend.
type Client struct {
	api         *openai.Client
	assistantID string
}

// NewClient creates an assistant client for the given API key and
// assistant id.
func NewClient(apiKey, assistantID string) *Client {
	return &Client{
		api:         openai.NewClient(apiKey),
		assistantID: assistantID,
	}
}

// CreateSession creates a fresh backend thread and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

// SessionValid probes the thread by listing its messages. A not-found
// answer is a definitive "invalid, recreate"; any other failure is
// returned so the caller can log it (and still recreate).
func (c *Client) SessionValid(ctx context.Context, sessionID string) (bool, error) {
	limit := 1
	_, err := c.api.ListMessage(ctx, sessionID, &limit, nil, nil, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		L_debug("assistant: thread no longer exists", "thread", sessionID)
		return false, nil
	}
	return false, fmt.Errorf("failed to check thread %s: %w", sessionID, err)
}

// DeleteSession deletes the thread. An already-deleted thread is not an
// error; the local registry has moved on either way.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.api.DeleteThread(ctx, sessionID)
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		L_debug("assistant: thread already deleted", "thread", sessionID)
		return nil
	}
	return fmt.Errorf("failed to delete thread %s: %w", sessionID, err)
}

// AppendMessage adds a user message to the thread.
func (c *Client) AppendMessage(ctx context.Context, sessionID, text string) error {
	_, err := c.api.CreateMessage(ctx, sessionID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("failed to append message to thread %s: %w", sessionID, err)
	}
	return nil
}

// StartRun starts an assistant run on the thread and returns the run id.
func (c *Client) StartRun(ctx context.Context, sessionID string) (string, error) {
	run, err := c.api.CreateRun(ctx, sessionID, openai.RunRequest{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start run on thread %s: %w", sessionID, err)
	}
	return run.ID, nil
}

// PollRun retrieves the run's current state.
func (c *Client) PollRun(ctx context.Context, sessionID, runID string) (RunState, error) {
	run, err := c.api.RetrieveRun(ctx, sessionID, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("failed to poll run %s: %w", runID, err)
	}

	switch run.Status {
	case openai.RunStatusCompleted:
		return RunState{Status: RunCompleted}, nil
	case openai.RunStatusFailed:
		detail := ""
		if run.LastError != nil {
			detail = run.LastError.Message
		}
		return RunState{Status: RunFailed, Detail: detail}, nil
	case openai.RunStatusCancelled:
		return RunState{Status: RunCancelled}, nil
	case openai.RunStatusExpired:
		return RunState{Status: RunExpired}, nil
	default:
		// queued, in_progress, cancelling, requires_action
		return RunState{Status: RunPending}, nil
	}
}

// CancelRun cancels a run best-effort.
func (c *Client) CancelRun(ctx context.Context, sessionID, runID string) error {
	if _, err := c.api.CancelRun(ctx, sessionID, runID); err != nil {
		return fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}
	return nil
}

// LatestReply returns the newest message text on the thread.
func (c *Client) LatestReply(ctx context.Context, sessionID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := c.api.ListMessage(ctx, sessionID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list messages on thread %s: %w", sessionID, err)
	}

	for _, msg := range list.Messages {
		for _, content := range msg.Content {
			if content.Text != nil {
				return content.Text.Value, nil
			}
		}
	}

	return "", fmt.Errorf("thread %s has no text reply", sessionID)
}
