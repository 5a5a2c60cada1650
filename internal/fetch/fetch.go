// Package fetch performs conditional HTTP GETs of calendar feeds. The
// change-detection fingerprint lives with the calendar's item metadata,
// so unlike a browser cache this client holds no state of its own.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "uplanner/internal/log"
)

// Response is the transport-level outcome of one conditional fetch.
// NotModified is a first-class signal: a 304 means the body is absent
// and the caller's cached content is still current.
type Response struct {
	StatusCode   int
	ETag         string
	LastModified string
	Body         []byte
	NotModified  bool
}

// Client fetches feed URLs with If-None-Match / If-Modified-Since
// validation headers.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client with the given request timeout. A zero
// timeout leaves request duration bounded only by the caller's context.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch issues a conditional GET of url, sending If-None-Match when
// etag is non-empty and If-Modified-Since when lastModified is
// non-empty. Non-2xx statuses other than 304 are errors.
func (c *Client) Fetch(ctx context.Context, url, etag, lastModified string) (Response, error) {
	if url == "" {
		return Response{}, errors.New("fetch: empty URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	appLog.Debug("fetch start", "url", RedactURL(url), "conditional", etag != "" || lastModified != "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		appLog.Debug("fetch not modified", "url", RedactURL(url))
		return Response{
			StatusCode:  resp.StatusCode,
			NotModified: true,
		}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Response{}, readErr
		}
		appLog.Debug("fetch success", "url", RedactURL(url), "status", resp.StatusCode, "bytes", len(body))
		return Response{
			StatusCode:   resp.StatusCode,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
		}, nil

	default:
		return Response{}, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}
}

// RedactURL hides the path and query of a feed URL for logging; private
// feed URLs routinely embed access tokens.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
