// Package notify publishes sync-completed messages for downstream consumers.
// Delivery to users is out of scope; the core only announces that a
// profile changed.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// EventSyncCompleted is the message type of a finished sync.
const EventSyncCompleted = "sync.completed"

// Message is the wire body of a notification.
type Message struct {
	Type        string      `json:"type"`
	UserID      string      `json:"userId"`
	Source      core.Source `json:"source"`
	Ref         string      `json:"ref,omitempty"`
	JobID       string      `json:"jobId"`
	Success     bool        `json:"success"`
	ItemsSynced int         `json:"itemsSynced"`
	Errors      []string    `json:"errors,omitempty"`
	Overall     *int        `json:"overall,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// MessageFor builds the message for a notification payload.
func MessageFor(n core.SyncNotification) Message {
	return Message{
		Type:        EventSyncCompleted,
		UserID:      n.UserID,
		Source:      n.Source,
		Ref:         n.Ref,
		JobID:       n.JobID,
		Success:     n.Result.Success,
		ItemsSynced: n.Result.ItemsSynced,
		Errors:      n.Result.Errors,
		Overall:     n.Overall,
		UpdatedAt:   n.Result.UpdatedAt,
	}
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, n core.SyncNotification) error
}

// LogPublisher logs notifications. It is used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(ctx context.Context, n core.SyncNotification) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := MessageFor(n)
	logger.InfoContext(ctx, "sync notification",
		"type", m.Type,
		"user_id", m.UserID,
		"source", m.Source,
		"job_id", m.JobID,
		"success", m.Success,
		"items_synced", m.ItemsSynced,
	)
	return nil
}
