package geminiwebapi

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// httpOptions configures a per-purpose HTTP client. The service blocks
// requests that look scripted, so every client built here carries the
// browser header set from models.go when the caller applies HeadersGemini.
type httpOptions struct {
	ProxyURL        string
	Insecure        bool
	FollowRedirects bool
	Timeout         time.Duration
}

func newHTTPClient(opts httpOptions) *http.Client {
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if pu, err := url.Parse(opts.ProxyURL); err == nil {
			switch strings.ToLower(pu.Scheme) {
			case "socks5", "socks5h":
				if dialer, errDial := xproxy.FromURL(pu, xproxy.Direct); errDial == nil {
					if cd, ok := dialer.(xproxy.ContextDialer); ok {
						transport.DialContext = cd.DialContext
					} else {
						transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
							return dialer.Dial(network, addr)
						}
					}
				}
			default:
				transport.Proxy = http.ProxyURL(pu)
			}
		}
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Transport: transport, Timeout: timeout, Jar: jar}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func applyHeaders(req *http.Request, headers http.Header) {
	for k, v := range headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
}

func applyCookies(req *http.Request, cookies map[string]string) {
	for k, v := range cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
}

// mergeResponseCookies folds Set-Cookie values from a response into the
// cookie map. Updates are never dropped; existing names are overwritten.
func mergeResponseCookies(cookies map[string]string, resp *http.Response) {
	if resp == nil {
		return
	}
	for _, c := range resp.Cookies() {
		if c.Value != "" {
			cookies[c.Name] = c.Value
		}
	}
}

// buildCookieHeader renders a raw Cookie header value in deterministic order.
func buildCookieHeader(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "; ")
}

func copyCookies(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// classifyNetworkError converts a transport failure into a NetworkError,
// marking timeout-like failures as transient.
func classifyNetworkError(msg string, err error) *NetworkError {
	transient := false
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		transient = true
	}
	if err == context.DeadlineExceeded {
		transient = true
	}
	return &NetworkError{Msg: msg, Transient: transient, Err: err}
}
