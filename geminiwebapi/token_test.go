package geminiwebapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authCookies() map[string]string {
	return map[string]string{
		CookiePSID:   "test-psid",
		CookiePSIDTS: "test-psidts",
	}
}

func TestTokenFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app" {
			_, _ = w.Write([]byte(`"SNlM0e":"abc123"`))
		}
	}))
	defer srv.Close()

	ts := &tokenStore{endpoints: Endpoints{Google: srv.URL + "/google", Init: srv.URL + "/app"}}
	token, cookies, err := ts.fetch(context.Background(), authCookies())
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, "test-psid", cookies[CookiePSID])
}

func TestTokenFetchExtractionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>no marker here</html>"))
	}))
	defer srv.Close()

	ts := &tokenStore{endpoints: Endpoints{Google: srv.URL + "/google", Init: srv.URL + "/app"}}
	_, _, err := ts.fetch(context.Background(), authCookies())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthTokenExtractionFailed, authErr.Reason)
}

func TestTokenRefreshCollapsesConcurrent(t *testing.T) {
	var initHits, rotateHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rotate":
			rotateHits.Add(1)
			http.SetCookie(w, &http.Cookie{Name: CookiePSIDTS, Value: "rotated"})
		case "/app":
			initHits.Add(1)
			// Hold the request open so concurrent refreshers pile up on the
			// same in-flight call.
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write([]byte(`"SNlM0e":"fresh-token"`))
		}
	}))
	defer srv.Close()

	ts := &tokenStore{endpoints: Endpoints{
		Google:        srv.URL + "/google",
		Init:          srv.URL + "/app",
		RotateCookies: srv.URL + "/rotate",
	}}

	const workers = 8
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], _, errs[i] = ts.refresh(context.Background(), authCookies())
		}()
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh-token", tokens[i])
	}
	assert.Equal(t, int32(1), rotateHits.Load())
	assert.Equal(t, int32(1), initHits.Load())
}

func TestRotatePSIDTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		http.SetCookie(w, &http.Cookie{Name: CookiePSIDTS, Value: "next-ts"})
	}))
	defer srv.Close()

	ts := &tokenStore{endpoints: Endpoints{RotateCookies: srv.URL}}
	val, err := ts.rotatePSIDTS(context.Background(), authCookies())
	require.NoError(t, err)
	assert.Equal(t, "next-ts", val)
}

func TestRotatePSIDTSExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := &tokenStore{endpoints: Endpoints{RotateCookies: srv.URL}}
	_, err := ts.rotatePSIDTS(context.Background(), authCookies())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthSessionExpired, authErr.Reason)
}

func TestMaskToken28(t *testing.T) {
	masked := MaskToken28("g.a000abcdefghijklmnopqrstuvwxyz012345")
	assert.NotContains(t, masked, "ghijklmnop")
	assert.True(t, strings.HasPrefix(masked, "g.a000ab"))
	assert.Len(t, MaskToken28("short"), 5)
	assert.Equal(t, "*****", MaskToken28("short"))
	assert.Empty(t, MaskToken28(""))
}
