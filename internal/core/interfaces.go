package core

import (
	"context"

	"github.com/dkeye/ChatCall/internal/domain"
)

// MessageStore is the persistence collaborator for chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *domain.Message) error
	Conversation(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error)
}

// BlobStore uploads a data URL and returns a public URL for it.
type BlobStore interface {
	Upload(ctx context.Context, dataURL string, kind domain.ContentType) (string, error)
}

// PresenceSink receives every presence snapshot. Publish must not block.
type PresenceSink interface {
	Publish(users []domain.UserID)
}
