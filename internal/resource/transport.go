package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// RequestTimeout bounds every provider call.
const RequestTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

var userAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/60.0.3112.90 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 9_1 like Mac OS X) AppleWebKit/601.1.46 (KHTML, like Gecko) Version/9.0 Mobile/13B143 Safari/601.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 9_1 like Mac OS X) AppleWebKit/601.1.46 (KHTML, like Gecko) Version/9.0 Mobile/13B143 Safari/601.1",
	"Mozilla/5.0 (Linux; Android 5.0; SM-G900P Build/LRX21T) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 5.1.1; Nexus 6 Build/LYZ28E) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Mobile Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 10_3_2 like Mac OS X) AppleWebKit/603.2.4 (KHTML, like Gecko) Mobile/14F89;GameHelper",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 10_0 like Mac OS X) AppleWebKit/602.1.38 (KHTML, like Gecko) Version/10.0 Mobile/14A300 Safari/602.1",
	"Mozilla/5.0 (iPad; CPU OS 10_0 like Mac OS X) AppleWebKit/602.1.38 (KHTML, like Gecko) Version/10.0 Mobile/14A300 Safari/602.1",
	"Mozilla/5.0 (Linux; U; Android 8.1.0; zh-cn; BKK-AL10 Build/HONORBKK-AL10) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/66.0.3359.126 MQQBrowser/10.6 Mobile Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.12; rv:46.0) Gecko/20100101 Firefox/46.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_5) AppleWebKit/603.2.4 (KHTML, like Gecko) Version/10.1.1 Safari/603.2.4",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:46.0) Gecko/20100101 Firefox/46.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2311.135 Safari/537.36 Edge/13.10586",
}

// UserAgents returns a copy of the user agent pool.
func UserAgents() []string {
	return append([]string(nil), userAgents...)
}

// StatusError is returned for any response other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed: %d %s", e.URL, e.StatusCode, e.Body)
}

// Transport is the HTTP session one gateway uses for its provider. It owns a
// cookie jar, a set of default headers and a user agent picked once at
// construction.
type Transport struct {
	client    *http.Client
	userAgent string
	headers   http.Header
}

// TransportOption customizes a Transport.
type TransportOption func(*Transport)

// WithRoundTripper replaces the underlying http.RoundTripper.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.client.Transport = rt
	}
}

// NewTransport creates a Transport with a fresh cookie jar.
func NewTransport(opts ...TransportOption) *Transport {
	jar, _ := cookiejar.New(nil)
	t := &Transport{
		client: &http.Client{
			Timeout: RequestTimeout,
			Jar:     jar,
		},
		userAgent: userAgents[rand.IntN(len(userAgents))],
		headers:   make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UserAgent returns the user agent sent on every request.
func (t *Transport) UserAgent() string { return t.userAgent }

// SetHeader sets a default header sent on every request.
func (t *Transport) SetHeader(key, value string) {
	t.headers.Set(key, value)
}

// SetCookies stores cookies in the session jar for u.
func (t *Transport) SetCookies(u *url.URL, cookies []*http.Cookie) {
	t.client.Jar.SetCookies(u, cookies)
}

// Get issues a GET request and returns the response body.
// Per-request headers override the transport defaults.
func (t *Transport) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return t.do(req, header)
}

// Post issues a POST request with the given body.
func (t *Transport) Post(ctx context.Context, rawURL string, body []byte, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return t.do(req, header)
}

func (t *Transport) do(req *http.Request, header http.Header) ([]byte, error) {
	req.Header.Set("User-Agent", t.userAgent)
	for k, v := range t.headers {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
