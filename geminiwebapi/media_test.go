package geminiwebapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebImageSave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	img := WebImage{Image: Image{URL: srv.URL + "/cat.png", Title: "cat"}}
	dir := t.TempDir()
	path, err := img.Save(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, "cat.png", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
}

func TestGeneratedImageRequiresCookies(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	img := GeneratedImage{Image: Image{URL: srv.URL + "/gen"}}
	_, err := img.Save(context.Background(), t.TempDir(), "out.png")

	var imgErr *ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, ImageMissingCredentials, imgErr.Reason)
	// The failure is detected before any network call.
	assert.Zero(t, hits.Load())
}

func TestGeneratedImageSaveFullSize(t *testing.T) {
	var gotPath, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("full-size"))
	}))
	defer srv.Close()

	img := GeneratedImage{
		Image:   Image{URL: srv.URL + "/gen/image"},
		Cookies: map[string]string{CookiePSID: "test-psid"},
	}
	path, err := img.SaveFullSize(context.Background(), t.TempDir(), "out.png", true)
	require.NoError(t, err)

	assert.Equal(t, "/gen/image=s2048", gotPath)
	assert.Contains(t, gotCookie, CookiePSID+"=test-psid")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "full-size", string(content))
}

func TestImageSaveCleansUpPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Advertise more bytes than sent so the client's copy fails mid-way.
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	img := Image{URL: srv.URL + "/broken.png"}
	dir := t.TempDir()
	_, err := img.save(context.Background(), dir, "broken.png", nil, false)

	var imgErr *ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, ImageWriteFailed, imgErr.Reason)
	_, statErr := os.Stat(filepath.Join(dir, "broken.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestImageSaveDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	img := Image{URL: srv.URL + "/missing.png"}
	_, err := img.save(context.Background(), t.TempDir(), "missing.png", nil, false)

	var imgErr *ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, ImageDownloadFailed, imgErr.Reason)
}

func TestUploadFile(t *testing.T) {
	var gotPushID string
	var gotContent []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPushID = r.Header.Get("Push-ID")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		gotContent = buf[:n]
		_, _ = w.Write([]byte("content-id-123"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("attached data"), 0o600))

	id, name, err := uploadFile(context.Background(), Endpoints{Upload: srv.URL}, path, "", false)
	require.NoError(t, err)
	assert.Equal(t, "content-id-123", id)
	assert.Equal(t, "report.txt", name)
	assert.NotEmpty(t, gotPushID)
	assert.Equal(t, "attached data", string(gotContent))
}

func TestUploadFileMissing(t *testing.T) {
	_, _, err := uploadFile(context.Background(), Endpoints{}, "/nonexistent/file.txt", "", false)
	var valErr *ValueError
	require.ErrorAs(t, err, &valErr)
}
