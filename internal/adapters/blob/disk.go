package blob

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ChatCall/internal/domain"
)

var (
	ErrBadDataURL   = fmt.Errorf("%w: malformed data url", domain.ErrInvalidMedia)
	ErrTooLarge     = fmt.Errorf("%w: upload exceeds size limit", domain.ErrInvalidMedia)
	ErrTypeMismatch = fmt.Errorf("%w: content does not match declared kind", domain.ErrInvalidMedia)
)

// DiskStore writes uploaded media under dir and serves it from baseURL.
type DiskStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewDiskStore(dir, baseURL string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Upload decodes a base64 data URL, checks the sniffed type against kind and
// stores the payload. It returns the public URL of the stored file.
func (s *DiskStore) Upload(ctx context.Context, dataURL string, kind domain.ContentType) (string, error) {
	payload, err := s.decode(dataURL)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mt := mimetype.Detect(payload)
	if !accepts(kind, mt) {
		return "", fmt.Errorf("%w: %s is %s", ErrTypeMismatch, kind, mt.String())
	}

	name := ulid.Make().String() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), payload, 0o644); err != nil {
		return "", err
	}
	log.Debug().Str("module", "adapters.blob").Str("file", name).Str("mime", mt.String()).Int("bytes", len(payload)).Msg("stored upload")
	return s.baseURL + "/" + name, nil
}

func (s *DiskStore) decode(dataURL string) ([]byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, ErrBadDataURL
	}
	meta, enc, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrBadDataURL
	}
	if s.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(enc))) > s.maxBytes+2 {
		return nil, ErrTooLarge
	}
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	if len(b) == 0 {
		return nil, ErrBadDataURL
	}
	if s.maxBytes > 0 && int64(len(b)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}

// accepts reports whether the sniffed type is plausible for kind. Browser
// voice notes are usually webm or ogg containers, which sniff as video.
func accepts(kind domain.ContentType, mt *mimetype.MIME) bool {
	family, _, _ := strings.Cut(mt.String(), "/")
	switch kind {
	case domain.ContentImage:
		return family == "image"
	case domain.ContentVideo:
		return family == "video"
	case domain.ContentAudio:
		return family == "audio" || mt.Is("video/webm") || mt.Is("video/ogg")
	}
	return false
}
