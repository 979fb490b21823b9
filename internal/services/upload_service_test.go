package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"digicop-backend/internal/models"
	"digicop-backend/internal/storage"
)

func newTestUploadService(t *testing.T) (*UploadService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "meta"))
	require.NoError(t, err)

	svc := NewUploadService(store)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, dir
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType, name, want string
	}{
		{"video/mp4", "clip.mov", ".mp4"},
		{"video/webm", "clip", ".webm"},
		{"video/ogg", "clip.ogg", ".ogv"},
		{"", "clip.mkv", ".mkv"},
		{"application/octet-stream", "clip", ".mp4"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ExtensionFor(tt.contentType, tt.name), "%s %s", tt.contentType, tt.name)
	}
}

func TestNormalizeContentType(t *testing.T) {
	mt, err := NormalizeContentType("video/webm; codecs=vp9")
	require.NoError(t, err)
	require.Equal(t, "video/webm", mt)

	mt, err = NormalizeContentType("VIDEO/MP4")
	require.NoError(t, err)
	require.Equal(t, "video/mp4", mt)

	for _, bad := range []string{"", "image/png", "video/quicktime", ";;"} {
		_, err := NormalizeContentType(bad)
		require.ErrorIs(t, err, ErrUnsupportedType, bad)
	}
}

func TestReadVideo_Limit(t *testing.T) {
	data, err := ReadVideo(bytes.NewReader(make([]byte, MaxVideoBytes)))
	require.NoError(t, err)
	require.Len(t, data, MaxVideoBytes)

	_, err = ReadVideo(bytes.NewReader(make([]byte, MaxVideoBytes+1)))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestUploadService_Store(t *testing.T) {
	svc, dir := newTestUploadService(t)
	data := bytes.Repeat([]byte{0xAB}, 1024)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	rec, err := svc.Store(context.Background(), &VideoUpload{
		OriginalName: "clip.mp4",
		ContentType:  "video/mp4",
		Data:         data,
		Extra:        map[string]string{"meta": `{"k":"v"}`},
	})
	require.NoError(t, err)

	require.Equal(t, hash, rec.Hash)
	require.Equal(t, hash+"-1700000000000.mp4", rec.Filename)
	require.Equal(t, "/uploads/"+rec.Filename, rec.SavedPath)
	require.Equal(t, int64(1024), rec.Size)
	require.Equal(t, int64(1700000000000), rec.TS)

	onDisk, err := os.ReadFile(filepath.Join(dir, "uploads", rec.Filename))
	require.NoError(t, err)
	require.Equal(t, data, onDisk)

	sidecar, err := os.ReadFile(filepath.Join(dir, "meta", hash+"-1700000000000.json"))
	require.NoError(t, err)
	require.Contains(t, string(sidecar), `"hash": "`+hash+`"`)
	require.Contains(t, string(sidecar), `"originalName": "clip.mp4"`)
}

type failingMetaStore struct {
	storage.Store
}

func (failingMetaStore) WriteMetadata(context.Context, *models.UploadRecord) error {
	return errors.New("disk full")
}

func TestUploadService_MetadataFailureLeavesOrphan(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "meta"))
	require.NoError(t, err)

	svc := NewUploadService(failingMetaStore{Store: local})
	_, err = svc.Store(context.Background(), &VideoUpload{OriginalName: "a.mp4", ContentType: "video/mp4", Data: []byte("abc")})
	require.EqualError(t, err, "disk full")

	orphans, err := NewUploadService(local).FindOrphans(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.True(t, strings.HasSuffix(orphans[0], ".mp4"))
}

func TestUploadService_ListAndVerify(t *testing.T) {
	svc, dir := newTestUploadService(t)
	ctx := context.Background()

	first, err := svc.Store(ctx, &VideoUpload{OriginalName: "a.webm", ContentType: "video/webm", Data: []byte("first")})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.UnixMilli(1700000000500) }
	second, err := svc.Store(ctx, &VideoUpload{OriginalName: "b.ogg", ContentType: "video/ogg", Data: []byte("second")})
	require.NoError(t, err)

	records, err := svc.ListUploads(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, second.Filename, records[0].Filename)
	require.Equal(t, first.Filename, records[1].Filename)

	checked, err := svc.Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, checked)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", first.Filename), []byte("tampered"), 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, "uploads", second.Filename)))

	checked, err = svc.Verify(ctx)
	require.Equal(t, 2, checked)
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash mismatch")
	require.Contains(t, err.Error(), storage.ErrNotFound.Error())
}

func TestUploadService_FindOrphans(t *testing.T) {
	svc, dir := newTestUploadService(t)
	ctx := context.Background()

	_, err := svc.Store(ctx, &VideoUpload{OriginalName: "a.mp4", ContentType: "video/mp4", Data: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", "deadbeef-1.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uploads", "stray.mp4"), []byte("x"), 0644))

	orphans, err := svc.FindOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"deadbeef-1.mp4", "stray.mp4"}, orphans)
}

func TestUploadService_RejectsOversize(t *testing.T) {
	svc, dir := newTestUploadService(t)

	_, err := svc.Store(context.Background(), &VideoUpload{
		OriginalName: "big.mp4",
		ContentType:  "video/mp4",
		Data:         make([]byte, MaxVideoBytes+1),
	})
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
