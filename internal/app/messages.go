package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/ChatCall/internal/core"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 200
	MaxTextLen          = 4000
)

// MessageService uploads media, then durably stores a message. Live delivery
// is left to the caller and must only happen after Send succeeds.
type MessageService struct {
	Store core.MessageStore
	Blobs core.BlobStore
	now   func() time.Time
}

func NewMessageService(store core.MessageStore, blobs core.BlobStore) *MessageService {
	return &MessageService{Store: store, Blobs: blobs, now: time.Now}
}

func (s *MessageService) Send(ctx context.Context, sender, receiver domain.UserID, d domain.MessageDraft) (*domain.Message, error) {
	if !sender.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	if !receiver.Valid() {
		return nil, domain.ErrMissingReceiver
	}
	if d.Empty() {
		return nil, domain.ErrEmptyMessage
	}
	text := truncateText(strings.TrimSpace(d.Text), MaxTextLen)

	now := s.now().UTC()
	msg := &domain.Message{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SenderID:    sender,
		ReceiverID:  receiver,
		Text:        text,
		ContentType: d.ResolvedContentType(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	uploads := []struct {
		data string
		kind domain.ContentType
		dst  *string
	}{
		{d.Image, domain.ContentImage, &msg.Image},
		{d.Audio, domain.ContentAudio, &msg.Audio},
		{d.Video, domain.ContentVideo, &msg.Video},
	}
	for _, u := range uploads {
		if u.data == "" {
			continue
		}
		if s.Blobs == nil {
			return nil, fmt.Errorf("%w: no blob store configured", ErrUpstream)
		}
		url, err := s.Blobs.Upload(ctx, u.data, u.kind)
		if err != nil {
			log.Error().Err(err).Str("module", "app.messages").Str("kind", string(u.kind)).Msg("upload failed")
			if errors.Is(err, domain.ErrInvalidMedia) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: upload %s: %v", ErrUpstream, u.kind, err)
		}
		*u.dst = url
	}

	if err := s.Store.CreateMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.messages").Str("sender", string(sender)).Msg("persist failed")
		return nil, fmt.Errorf("%w: persist: %v", ErrUpstream, err)
	}
	log.Info().Str("module", "app.messages").Str("id", msg.ID).Str("sender", string(sender)).
		Str("receiver", string(receiver)).Str("content_type", string(msg.ContentType)).Msg("message stored")
	return msg, nil
}

// History returns the conversation between a and b, oldest first.
func (s *MessageService) History(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	if !a.Valid() || !b.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	msgs, err := s.Store.Conversation(ctx, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return msgs, nil
}

// truncateText caps s at limit bytes without splitting a rune.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	i := limit
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
