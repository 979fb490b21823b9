package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"digicop-backend/internal/dto"
	"digicop-backend/internal/logger"
	"digicop-backend/internal/models"
	"digicop-backend/internal/services"
	"digicop-backend/internal/storage"
	"digicop-backend/utils/response"
)

type uploadEnv struct {
	handler   *UploadHandler
	uploadDir string
	metaDir   string
}

func newUploadEnv(t *testing.T) *uploadEnv {
	t.Helper()
	dir := t.TempDir()
	env := &uploadEnv{
		uploadDir: filepath.Join(dir, "uploads"),
		metaDir:   filepath.Join(dir, "meta"),
	}
	store, err := storage.NewLocalStore(env.uploadDir, env.metaDir)
	require.NoError(t, err)

	env.handler = NewUploadHandler(services.NewUploadService(store), logger.Nop())
	return env
}

func (e *uploadEnv) files(t *testing.T) (videos, sidecars []string) {
	t.Helper()
	return dirNames(t, e.uploadDir), dirNames(t, e.metaDir)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type formFile struct {
	field, name, contentType string
	body                     io.Reader
}

// multipartBody streams the form through a pipe so large bodies are never
// held in memory.
func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.ReadCloser, string) {
	t.Helper()
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		for _, f := range files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
			h.Set("Content-Type", f.contentType)
			part, err := mw.CreatePart(h)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f.body); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	t.Cleanup(func() { pr.Close() })
	return pr, mw.FormDataContentType()
}

func (e *uploadEnv) do(t *testing.T, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/upload-demo", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.handler.UploadDemo(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadDemo_StoresVideoAndSidecar(t *testing.T) {
	env := newUploadEnv(t)
	data := bytes.Repeat([]byte{0x42}, 1024)
	sum := sha256.Sum256(data)
	wantHash := hex.EncodeToString(sum[:])

	body, ct := multipartBody(t, map[string]string{"meta": `{"source":"landing"}`},
		formFile{field: "video", name: "clip.mp4", contentType: "video/mp4", body: bytes.NewReader(data)})
	rec := env.do(t, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, wantHash, resp.Hash)
	require.Equal(t, "clip.mp4", resp.OriginalName)
	require.Equal(t, fmt.Sprintf("%s-%d.mp4", wantHash, resp.TS), resp.Filename)
	require.Equal(t, "/uploads/"+resp.Filename, resp.URL)

	stored, err := os.ReadFile(filepath.Join(env.uploadDir, resp.Filename))
	require.NoError(t, err)
	require.Equal(t, data, stored)

	raw, err := os.ReadFile(filepath.Join(env.metaDir, fmt.Sprintf("%s-%d.json", wantHash, resp.TS)))
	require.NoError(t, err)
	var record models.UploadRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	require.Equal(t, int64(1024), record.Size)
	require.Equal(t, "video/mp4", record.MimeType)
	require.Equal(t, resp.URL, record.SavedPath)
	require.Equal(t, `{"source":"landing"}`, record.Extra["meta"])
}

func TestUploadDemo_OversizeLeavesNoFiles(t *testing.T) {
	env := newUploadEnv(t)

	body, ct := multipartBody(t, nil, formFile{
		field: "video", name: "big.mp4", contentType: "video/mp4",
		body: io.LimitReader(zeroReader{}, services.MaxVideoBytes+1),
	})
	rec := env.do(t, body, ct)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "File too large", decodeError(t, rec).Error)

	videos, sidecars := env.files(t)
	require.Empty(t, videos)
	require.Empty(t, sidecars)
}

func TestUploadDemo_RejectsTypeBeforeReadingBody(t *testing.T) {
	env := newUploadEnv(t)
	counter := &countingReader{r: io.LimitReader(zeroReader{}, 10<<20)}

	body, ct := multipartBody(t, nil, formFile{
		field: "video", name: "notes.txt", contentType: "text/plain", body: counter,
	})
	rec := env.do(t, body, ct)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Equal(t, "Only mp4/webm/ogg video allowed", decodeError(t, rec).Error)
	// Only what the pipe and multipart buffers hold can have been pulled.
	require.Less(t, counter.n.Load(), int64(1<<20))

	videos, sidecars := env.files(t)
	require.Empty(t, videos)
	require.Empty(t, sidecars)
}

func TestUploadDemo_BadRequests(t *testing.T) {
	env := newUploadEnv(t)

	t.Run("no video part", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"meta": "{}"})
		rec := env.do(t, body, ct)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "No video uploaded", decodeError(t, rec).Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := env.do(t, bytes.NewBufferString(`{"video":"x"}`), "application/json")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("truncated body", func(t *testing.T) {
		boundary := "digicop-boundary"
		body := "--" + boundary + "\r\n" +
			"Content-Disposition: form-data; name=\"video\"; filename=\"clip.mp4\"\r\n" +
			"Content-Type: video/mp4\r\n\r\n" +
			"partial video bytes"
		rec := env.do(t, bytes.NewBufferString(body), "multipart/form-data; boundary="+boundary)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, errBadForm.Error(), decodeError(t, rec).Error)
	})

	t.Run("two videos", func(t *testing.T) {
		body, ct := multipartBody(t, nil,
			formFile{field: "video", name: "a.mp4", contentType: "video/mp4", body: bytes.NewReader([]byte("a"))},
			formFile{field: "video", name: "b.mp4", contentType: "video/mp4", body: bytes.NewReader([]byte("b"))},
		)
		rec := env.do(t, body, ct)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	videos, sidecars := env.files(t)
	require.Empty(t, videos)
	require.Empty(t, sidecars)
}

type failingStore struct{}

func (failingStore) Store(_ context.Context, _ *services.VideoUpload) (*models.UploadRecord, error) {
	return nil, errors.New("disk full")
}

func TestUploadDemo_StorageFailure(t *testing.T) {
	h := NewUploadHandler(failingStore{}, logger.Nop())

	body, ct := multipartBody(t, nil, formFile{
		field: "video", name: "clip.webm", contentType: "video/webm", body: bytes.NewReader([]byte("data")),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload-demo", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.UploadDemo(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "disk full", decodeError(t, rec).Error)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
