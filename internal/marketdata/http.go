package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// statusError is returned for any non-200 response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type httpGetter struct {
	client *http.Client
}

func newHTTPGetter(timeout time.Duration) *httpGetter {
	return &httpGetter{client: &http.Client{Timeout: timeout}}
}

// get performs an HTTP GET and returns the body bytes, or an error for any
// non-200 status code.
func (g *httpGetter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "betengine/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
