// Package blob stores uploaded files and hands back opaque serving
// URLs. The core never inspects blob contents beyond mime sniffing.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DiskStore writes blobs under a local directory served at baseURL.
// The stored name is a fresh uuid plus the sniffed extension, so client
// file names never touch the filesystem.
type DiskStore struct {
	dir     string
	baseURL string
	log     *slog.Logger
}

func NewDiskStore(dir, baseURL string, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL, log: log}, nil
}

func (s *DiskStore) Store(_ context.Context, name string, data []byte) (domain.FileDescriptor, error) {
	if len(data) == 0 {
		return domain.FileDescriptor{}, errors.ErrUploadFailed
	}

	detected := mimetype.Detect(data)
	stored := uuid.NewString() + detected.Extension()

	if err := os.WriteFile(filepath.Join(s.dir, stored), data, 0o644); err != nil {
		s.log.Error("blob write failed", "name", stored, "error", err)
		return domain.FileDescriptor{}, errors.ErrUploadFailed
	}

	return domain.FileDescriptor{
		Name:     name,
		URL:      s.baseURL + "/" + stored,
		MimeType: detected.String(),
	}, nil
}

// Dir exposes the storage directory so the router can serve it.
func (s *DiskStore) Dir() string { return s.dir }
