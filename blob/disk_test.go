package blob

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chat-hub/errors"

	"github.com/stretchr/testify/require"
)

func Test_Store_Sniffs_Mime_And_Hides_Client_Name(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "http://localhost:8080/files", slog.Default())
	req.NoError(err)

	descriptor, err := store.Store(context.Background(), "../../etc/passwd.png", []byte("%PDF-1.7 some pdf bytes"))
	req.NoError(err)
	req.Equal("../../etc/passwd.png", descriptor.Name)
	req.Contains(descriptor.MimeType, "application/pdf")
	req.True(strings.HasPrefix(descriptor.URL, "http://localhost:8080/files/"))
	// The stored file name is server-generated, never the client's.
	req.NotContains(descriptor.URL, "passwd")

	stored := strings.TrimPrefix(descriptor.URL, "http://localhost:8080/files/")
	data, err := os.ReadFile(filepath.Join(dir, stored))
	req.NoError(err)
	req.Equal("%PDF-1.7 some pdf bytes", string(data))
}

func Test_Store_Rejects_Empty_Payload(t *testing.T) {
	req := require.New(t)
	store, err := NewDiskStore(t.TempDir(), "http://localhost/files", slog.Default())
	req.NoError(err)

	_, err = store.Store(context.Background(), "empty.bin", nil)
	req.ErrorIs(err, errors.ErrUploadFailed)
}

func Test_New_Disk_Store_Creates_Directory(t *testing.T) {
	req := require.New(t)
	dir := filepath.Join(t.TempDir(), "nested", "blobs")

	_, err := NewDiskStore(dir, "http://localhost/files", slog.Default())
	req.NoError(err)
	info, err := os.Stat(dir)
	req.NoError(err)
	req.True(info.IsDir())
}
