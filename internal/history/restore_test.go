package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calside/betsim/internal/domain"
)

// memBlob is an in-memory domain.BlobReader keyed by object path.
type memBlob struct {
	objects map[string]string
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestRestoreDownloadsArchivedDay(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.DiscardHandler)
	root := t.TempDir()

	blob := &memBlob{objects: map[string]string{
		"20240301/marketstreams/1.a.json":  `{"timestamp":"2024-03-01T12:00:00Z"}` + "\n",
		"20240301/marketstreams/1.b.json":  `{"timestamp":"2024-03-01T12:00:01Z"}` + "\n",
		"20240301/marketstreams/notes.txt": "ignored",
		"20240302/marketstreams/1.c.json":  "other day",
	}}

	n, err := Restore(context.Background(), blob, root, date, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store := NewFileStore(root, date, logger)
	defer store.Close()
	ids, err := store.Markets(date)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.a", "1.b"}, ids)

	data, err := os.ReadFile(filepath.Join(root, "20240301", "marketstreams", "1.a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"timestamp":"2024-03-01T12:00:00Z"}`+"\n", string(data))
}

func TestRestoreKeepsExistingLocalStreams(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.DiscardHandler)
	root := t.TempDir()

	dir := filepath.Join(root, "20240301", "marketstreams")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.a.json"), []byte("local copy\n"), 0o644))

	blob := &memBlob{objects: map[string]string{
		"20240301/marketstreams/1.a.json": "remote copy\n",
	}}

	n, err := Restore(context.Background(), blob, root, date, logger)
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(filepath.Join(dir, "1.a.json"))
	require.NoError(t, err)
	assert.Equal(t, "local copy\n", string(data))
}

func TestRestoreEmptyArchive(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	root := t.TempDir()

	n, err := Restore(context.Background(), &memBlob{objects: map[string]string{}}, root, date, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = os.Stat(filepath.Join(root, "20240301"))
	assert.True(t, os.IsNotExist(err))
}
