package store

import (
	"context"

	"github.com/nhle/thread-reply/internal/model"
)

// Journal defines the persistence interface for dispatched messages.
type Journal interface {
	// RecordReply stores one dispatched message. An empty ID is filled
	// with a new UUID.
	RecordReply(ctx context.Context, r model.SentReply) error

	// ListReplies returns the most recent entries first. limit <= 0
	// returns everything.
	ListReplies(ctx context.Context, limit int) ([]model.SentReply, error)

	// RepliesTo returns the entries whose In-Reply-To or References
	// chain mentions messageID, most recent first.
	RepliesTo(ctx context.Context, messageID string) ([]model.SentReply, error)

	Close() error
}
