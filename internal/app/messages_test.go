package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	msgs []domain.Message
	err  error
}

func (m *memStore) CreateMessage(_ context.Context, msg *domain.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memStore) Conversation(_ context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Message
	for _, msg := range m.msgs {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memBlobs struct {
	uploads []domain.ContentType
	err     error
}

func (m *memBlobs) Upload(_ context.Context, _ string, kind domain.ContentType) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.uploads = append(m.uploads, kind)
	return "/uploads/" + string(kind), nil
}

func TestMessageServiceSendText(t *testing.T) {
	store := &memStore{}
	svc := NewMessageService(store, nil)

	msg, err := svc.Send(context.Background(), "u1", "u2", domain.MessageDraft{Text: "  hello "})
	require.NoError(t, err)
	assert.Len(t, msg.ID, 26)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, domain.ContentText, msg.ContentType)
	assert.False(t, msg.CreatedAt.IsZero())
	require.Len(t, store.msgs, 1)
	assert.Equal(t, msg.ID, store.msgs[0].ID)
}

func TestMessageServiceTextCapKeepsRunesWhole(t *testing.T) {
	store := &memStore{}
	svc := NewMessageService(store, nil)

	text := strings.Repeat("a", MaxTextLen-1) + "é"
	msg, err := svc.Send(context.Background(), "u1", "u2", domain.MessageDraft{Text: text})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(msg.Text))
	assert.Equal(t, strings.Repeat("a", MaxTextLen-1), msg.Text)

	msg, err = svc.Send(context.Background(), "u1", "u2", domain.MessageDraft{Text: strings.Repeat("é", MaxTextLen)})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(msg.Text))
	assert.Len(t, msg.Text, MaxTextLen)
}

func TestMessageServiceUploadsMedia(t *testing.T) {
	store, blobs := &memStore{}, &memBlobs{}
	svc := NewMessageService(store, blobs)

	msg, err := svc.Send(context.Background(), "u1", "u2", domain.MessageDraft{
		Image: "data:image/png;base64,AA==",
		Audio: "data:audio/ogg;base64,AA==",
	})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/image", msg.Image)
	assert.Equal(t, "/uploads/audio", msg.Audio)
	assert.Empty(t, msg.Video)
	assert.Equal(t, domain.ContentImage, msg.ContentType)
	assert.Equal(t, []domain.ContentType{domain.ContentImage, domain.ContentAudio}, blobs.uploads)
}

func TestMessageServiceValidation(t *testing.T) {
	svc := NewMessageService(&memStore{}, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, "", "u2", domain.MessageDraft{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	_, err = svc.Send(ctx, "u1", "", domain.MessageDraft{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrMissingReceiver)
	_, err = svc.Send(ctx, "u1", "u2", domain.MessageDraft{})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestMessageServiceUpstreamFailures(t *testing.T) {
	ctx := context.Background()

	store := &memStore{}
	svc := NewMessageService(store, &memBlobs{err: errors.New("disk full")})
	_, err := svc.Send(ctx, "u1", "u2", domain.MessageDraft{Video: "data:video/mp4;base64,AA=="})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, store.msgs, "nothing is stored when an upload fails")

	svc = NewMessageService(&memStore{err: errors.New("db down")}, nil)
	_, err = svc.Send(ctx, "u1", "u2", domain.MessageDraft{Text: "x"})
	assert.ErrorIs(t, err, ErrUpstream)

	svc = NewMessageService(&memStore{}, nil)
	_, err = svc.Send(ctx, "u1", "u2", domain.MessageDraft{Image: "data:image/png;base64,AA=="})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestMessageServiceHistory(t *testing.T) {
	store := &memStore{}
	svc := NewMessageService(store, nil)
	ctx := context.Background()
	_, _ = svc.Send(ctx, "u1", "u2", domain.MessageDraft{Text: "a"})
	_, _ = svc.Send(ctx, "u2", "u1", domain.MessageDraft{Text: "b"})
	_, _ = svc.Send(ctx, "u1", "u3", domain.MessageDraft{Text: "c"})

	msgs, err := svc.History(ctx, "u1", "u2", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)

	_, err = svc.History(ctx, "u1", "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestMessageServiceInvalidMediaIsNotUpstream(t *testing.T) {
	bad := fmt.Errorf("%w: not an image", domain.ErrInvalidMedia)
	svc := NewMessageService(&memStore{}, &memBlobs{err: bad})

	_, err := svc.Send(context.Background(), "u1", "u2", domain.MessageDraft{Image: "data:image/png;base64,AA=="})
	assert.ErrorIs(t, err, domain.ErrInvalidMedia)
	assert.NotErrorIs(t, err, ErrUpstream)
}
