package geminiwebapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// reToken extracts the rotating session token from the app front page. The
// marker is fixed; its absence means the cookies no longer authenticate.
var reToken = regexp.MustCompile(`"SNlM0e":"([^"]+)"`)

// tokenStore holds the rotating short-lived token and serializes refreshes.
// Concurrent callers observing a stale token collapse into one in-flight
// fetch via singleflight and all receive its outcome.
type tokenStore struct {
	endpoints Endpoints
	proxy     string
	insecure  bool
	group     singleflight.Group
}

type tokenResult struct {
	token   string
	cookies map[string]string
}

// sendInitRequest fetches the app front page with the given cookies and
// returns the response plus the merged cookie set.
func (t *tokenStore) sendInitRequest(ctx context.Context, cookies map[string]string) (*http.Response, map[string]string, error) {
	client := newHTTPClient(httpOptions{ProxyURL: t.proxy, Insecure: t.insecure, FollowRedirects: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoints.Init, nil)
	if err != nil {
		return nil, nil, &NetworkError{Msg: "build init request", Err: err}
	}
	applyHeaders(req, HeadersGemini)
	applyCookies(req, cookies)
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, classifyNetworkError("init request", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, nil, &AuthError{Reason: AuthTokenExtractionFailed, Msg: resp.Status}
	}
	outCookies := map[string]string{}
	mergeResponseCookies(outCookies, resp)
	for k, v := range cookies {
		outCookies[k] = v
	}
	return resp, outCookies, nil
}

// fetch scrapes the token from the front page. Cookie sets are tried in
// order: the caller's auth cookies first, then anonymous warm-up cookies.
func (t *tokenStore) fetch(ctx context.Context, baseCookies map[string]string) (string, map[string]string, error) {
	trySets := make([]map[string]string, 0, 2)

	if v1, ok1 := baseCookies[CookiePSID]; ok1 {
		if v2, ok2 := baseCookies[CookiePSIDTS]; ok2 {
			merged := map[string]string{CookiePSID: v1, CookiePSIDTS: v2}
			if nid, ok := baseCookies[CookieNID]; ok {
				merged[CookieNID] = nid
			}
			trySets = append(trySets, merged)
		} else {
			log.Debug("Skipping base cookies: __Secure-1PSIDTS missing")
		}
	}

	// Warm-up google.com for anonymous cookies (NID, etc.) as a fallback set.
	if extra := t.warmupCookies(ctx); len(extra) > 0 {
		trySets = append(trySets, extra)
	}

	for _, cookies := range trySets {
		resp, mergedCookies, err := t.sendInitRequest(ctx, cookies)
		if err != nil {
			log.Warnf("Failed init request: %v", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return "", nil, classifyNetworkError("read init response", err)
		}
		matches := reToken.FindStringSubmatch(string(body))
		if len(matches) >= 2 {
			log.Debug("Gemini access token acquired.")
			return matches[1], mergedCookies, nil
		}
	}
	return "", nil, &AuthError{Reason: AuthTokenExtractionFailed, Msg: "failed to retrieve token"}
}

func (t *tokenStore) warmupCookies(ctx context.Context) map[string]string {
	client := newHTTPClient(httpOptions{ProxyURL: t.proxy, Insecure: t.insecure, FollowRedirects: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoints.Google, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debugf("priming google cookies failed: %v", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	extra := map[string]string{}
	if u, errParse := url.Parse(t.endpoints.Google); errParse == nil {
		for _, c := range client.Jar.Cookies(u) {
			extra[c.Name] = c.Value
		}
	}
	return extra
}

// refresh collapses concurrent calls into one rotation + token fetch. All
// waiters receive the same result.
func (t *tokenStore) refresh(ctx context.Context, cookies map[string]string) (string, map[string]string, error) {
	v, err, _ := t.group.Do("refresh", func() (any, error) {
		working := copyCookies(cookies)
		if ts, errRotate := t.rotatePSIDTS(ctx, working); errRotate != nil {
			log.Debugf("cookie rotation failed: %v", errRotate)
		} else if ts != "" {
			working[CookiePSIDTS] = ts
		}
		token, merged, errFetch := t.fetch(ctx, working)
		if errFetch != nil {
			return nil, errFetch
		}
		return tokenResult{token: token, cookies: merged}, nil
	})
	if err != nil {
		return "", nil, err
	}
	res := v.(tokenResult)
	return res.token, copyCookies(res.cookies), nil
}

// rotatePSIDTS asks the accounts endpoint for a fresh __Secure-1PSIDTS.
func (t *tokenStore) rotatePSIDTS(ctx context.Context, cookies map[string]string) (string, error) {
	if _, ok := cookies[CookiePSID]; !ok {
		return "", &AuthError{Reason: AuthMissingCredential, Msg: CookiePSID + " missing"}
	}

	client := newHTTPClient(httpOptions{ProxyURL: t.proxy, Insecure: t.insecure, FollowRedirects: true})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoints.RotateCookies, strings.NewReader("[000,\"-0000000000000000000\"]"))
	if err != nil {
		return "", &NetworkError{Msg: "build rotate request", Err: err}
	}
	applyHeaders(req, HeadersRotateCookies)
	applyCookies(req, cookies)

	resp, err := client.Do(req)
	if err != nil {
		return "", classifyNetworkError("rotate cookies", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Reason: AuthSessionExpired, Msg: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &NetworkError{Msg: "rotate cookies: " + resp.Status, Status: resp.StatusCode, Transient: resp.StatusCode >= 500}
	}

	for _, c := range resp.Cookies() {
		if c.Name == CookiePSIDTS {
			return c.Value, nil
		}
	}
	// The Set-Cookie may land on a redirect hop; check the jar as well.
	if u, errParse := url.Parse(t.endpoints.RotateCookies); errParse == nil && client.Jar != nil {
		for _, c := range client.Jar.Cookies(u) {
			if c.Name == CookiePSIDTS && c.Value != "" {
				return c.Value, nil
			}
		}
	}
	return "", nil
}

// MaskToken28 masks a sensitive token for safe logging, keeping the edges and
// a short middle segment visible.
func MaskToken28(s string) string {
	n := len(s)
	if n == 0 {
		return ""
	}
	if n < 20 {
		return strings.Repeat("*", n)
	}
	midStart := n/2 - 2
	if midStart < 8 {
		midStart = 8
	}
	if midStart+4 > n-8 {
		midStart = n - 8 - 4
		if midStart < 8 {
			midStart = 8
		}
	}
	prefix := s[:8]
	middle := s[midStart : midStart+4]
	suffix := s[n-8:]
	return prefix + strings.Repeat("*", 4) + middle + strings.Repeat("*", 4) + suffix
}
