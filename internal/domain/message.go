package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyMessage    = errors.New("message has no content")
	ErrMissingReceiver = errors.New("message receiver missing")
	ErrInvalidMedia    = errors.New("invalid media attachment")
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
)

// Message is a chat message as stored by the persistence layer.
// Media fields hold blob URLs, never inline data.
type Message struct {
	ID          string      `json:"id"          gorm:"type:char(26);primaryKey"`
	SenderID    UserID      `json:"senderId"    gorm:"type:varchar(64);not null;index:idx_conversation,priority:1"`
	ReceiverID  UserID      `json:"receiverId"  gorm:"type:varchar(64);not null;index:idx_conversation,priority:2"`
	Text        string      `json:"text"        gorm:"type:text"`
	Image       string      `json:"image"       gorm:"type:varchar(512)"`
	Audio       string      `json:"audio"       gorm:"type:varchar(512)"`
	Video       string      `json:"video"       gorm:"type:varchar(512)"`
	ContentType ContentType `json:"contentType" gorm:"type:varchar(16);not null;default:'text'"`
	CreatedAt   time.Time   `json:"createdAt"   gorm:"index"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }

// MessageDraft is what a client submits. Image, Audio and Video are data URLs.
type MessageDraft struct {
	Text        string      `json:"text"`
	Image       string      `json:"image"`
	Audio       string      `json:"audio"`
	Video       string      `json:"video"`
	ContentType ContentType `json:"contentType"`
}

func (d MessageDraft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Image == "" && d.Audio == "" && d.Video == ""
}

// ResolvedContentType prefers the declared type, falling back to the first media present.
func (d MessageDraft) ResolvedContentType() ContentType {
	switch d.ContentType {
	case ContentText, ContentImage, ContentAudio, ContentVideo:
		return d.ContentType
	}
	switch {
	case d.Image != "":
		return ContentImage
	case d.Audio != "":
		return ContentAudio
	case d.Video != "":
		return ContentVideo
	}
	return ContentText
}
