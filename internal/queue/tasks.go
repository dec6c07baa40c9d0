package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"document-rag-platform/internal/config"
)

const (
	TypeDocumentIngest = "document:ingest"
)

// DocumentIngestPayload carries only the file ID. The worker reloads the
// document record so it always processes the current state, not the state
// at enqueue time.
type DocumentIngestPayload struct {
	FileID string `json:"file_id"`
}

// NewDocumentIngestTask builds the task for ingesting one stored document.
func NewDocumentIngestTask(fileID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{FileID: fileID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TypeDocumentIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// Client enqueues background tasks over Redis.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURL, Password: cfg.RedisPassword, DB: cfg.RedisDB}),
	}
}

// EnqueueDocumentIngest queues a document for background ingestion and
// returns the task ID for status polling.
func (c *Client) EnqueueDocumentIngest(ctx context.Context, fileID string) (string, error) {
	task, err := NewDocumentIngestTask(fileID)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
