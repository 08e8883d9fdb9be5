package geminiwebapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Image is a reference to an image asset described in a response, not the
// image bytes themselves.
type Image struct {
	URL   string
	Title string
	Alt   string
	Proxy string
}

func (i Image) String() string {
	short := i.URL
	if len(short) > 20 {
		short = short[:8] + "..." + short[len(short)-12:]
	}
	return fmt.Sprintf("Image(title='%s', alt='%s', url='%s')", i.Title, i.Alt, short)
}

var reFilename = regexp.MustCompile(`^(.*\.\w+)`)

// save downloads the asset into dir. The write is scoped: the file is
// created, written, and closed on every exit path, and a partial file is
// removed when the download or write fails mid-way.
func (i Image) save(ctx context.Context, dir, filename string, cookies map[string]string, insecure bool) (string, error) {
	if filename == "" {
		u := i.URL
		if p := strings.Split(u, "/"); len(p) > 0 {
			filename = p[len(p)-1]
		}
		if q := strings.Split(filename, "?"); len(q) > 0 {
			filename = q[0]
		}
		if m := reFilename.FindStringSubmatch(filename); len(m) >= 2 {
			filename = m[1]
		} else {
			filename = "image_" + uuid.NewString()[:8] + ".jpg"
		}
	}

	client := newHTTPClient(httpOptions{ProxyURL: i.Proxy, Insecure: insecure, FollowRedirects: true, Timeout: 120 * time.Second})
	rawCookie := buildCookieHeader(cookies)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		// Session cookies must survive cross-host redirects for
		// access-controlled assets.
		if rawCookie != "" {
			req.Header.Set("Cookie", rawCookie)
		}
		if len(via) >= 10 {
			return &ImageError{Reason: ImageDownloadFailed, Msg: "stopped after 10 redirects"}
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return "", &ImageError{Reason: ImageDownloadFailed, Msg: err.Error()}
	}
	if rawCookie != "" {
		req.Header.Set("Cookie", rawCookie)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return "", &ImageError{Reason: ImageDownloadFailed, Msg: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", &ImageError{Reason: ImageDownloadFailed, Msg: fmt.Sprintf("status %d downloading %s", resp.StatusCode, i.URL)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "image") {
		log.Warnf("Content type of %s is not image, but %s.", filename, ct)
	}

	if dir == "" {
		dir = "downloaded_images"
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", &ImageError{Reason: ImageWriteFailed, Msg: err.Error()}
	}
	dest := filepath.Join(dir, filename)
	f, err := os.Create(dest)
	if err != nil {
		return "", &ImageError{Reason: ImageWriteFailed, Msg: err.Error()}
	}
	_, err = io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", &ImageError{Reason: ImageWriteFailed, Msg: err.Error()}
	}
	abspath, _ := filepath.Abs(dest)
	return abspath, nil
}

// WebImage is an image pulled from web search results.
type WebImage struct{ Image }

// Save downloads the image with a direct unauthenticated fetch.
func (w WebImage) Save(ctx context.Context, dir, filename string) (string, error) {
	return w.save(ctx, dir, filename, nil, false)
}

// GeneratedImage is an AI-generated image. The asset URL is itself
// session-authorized: resolving it requires the cookies of the session that
// produced it.
type GeneratedImage struct {
	Image
	Cookies map[string]string
}

// Save downloads the generated image using the owning session's cookies.
// A GeneratedImage detached from its session fails before any network call.
func (g GeneratedImage) Save(ctx context.Context, dir, filename string) (string, error) {
	return g.SaveFullSize(ctx, dir, filename, true)
}

// SaveFullSize optionally requests the full-resolution variant.
func (g GeneratedImage) SaveFullSize(ctx context.Context, dir, filename string, fullSize bool) (string, error) {
	if len(g.Cookies) == 0 {
		return "", &ImageError{Reason: ImageMissingCredentials, Msg: "GeneratedImage requires the owning session's cookies"}
	}
	strURL := g.URL
	if fullSize {
		strURL += "=s2048"
	}
	if filename == "" {
		name := time.Now().Format("20060102150405")
		if len(strURL) >= 10 {
			filename = fmt.Sprintf("%s_%s.png", name, strURL[len(strURL)-10:])
		} else {
			filename = name + ".png"
		}
	}
	tmp := g.Image
	tmp.URL = strURL
	return tmp.save(ctx, dir, filename, g.Cookies, false)
}

// Upload ---------------------------------------------------------------------

// uploadBytes pushes file content to the upload endpoint and returns the
// opaque identifier the chat request references. The preceding upload and
// the chat turn are separate requests; bytes never ride in the chat body.
func uploadBytes(ctx context.Context, endpoints Endpoints, name string, content []byte, proxy string, insecure bool) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", &EncodingError{Msg: "build upload form: " + err.Error()}
	}
	if _, err = fw.Write(content); err != nil {
		return "", &EncodingError{Msg: "write upload form: " + err.Error()}
	}
	_ = mw.Close()

	client := newHTTPClient(httpOptions{ProxyURL: proxy, Insecure: insecure, FollowRedirects: true, Timeout: 300 * time.Second})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.Upload, &buf)
	if err != nil {
		return "", &NetworkError{Msg: "build upload request", Err: err}
	}
	applyHeaders(req, HeadersUpload)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return "", classifyNetworkError("upload request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &NetworkError{Msg: "upload failed: " + resp.Status, Status: resp.StatusCode, Transient: resp.StatusCode >= 500}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyNetworkError("read upload response", err)
	}
	return string(b), nil
}

// uploadFile reads a file from disk and uploads it.
func uploadFile(ctx context.Context, endpoints Endpoints, path, proxy string, insecure bool) (string, string, error) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", "", &ValueError{Msg: path + " is not a valid file."}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", &ValueError{Msg: "read " + path + ": " + err.Error()}
	}
	name := filepath.Base(path)
	id, err := uploadBytes(ctx, endpoints, name, content, proxy, insecure)
	if err != nil {
		return "", "", err
	}
	return id, name, nil
}
