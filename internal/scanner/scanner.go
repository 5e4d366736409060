// Package scanner submits uploaded bytes to an external malware scanner.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Scanner interface {
	// Scan reports whether data is clean. An error means no verdict was
	// reached and the caller decides the policy.
	Scan(ctx context.Context, data []byte) (bool, error)
}

type verdict struct {
	Clean *bool `json:"clean"`
}

// HTTPScanner posts the raw bytes to url and expects {"clean": bool}.
type HTTPScanner struct {
	url    string
	client *http.Client
}

func NewHTTPScanner(url string, timeout time.Duration) *HTTPScanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPScanner{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScanner) Scan(ctx context.Context, data []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("scan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("scan request: unexpected status %d", resp.StatusCode)
	}

	var v verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return false, fmt.Errorf("decode verdict: %w", err)
	}
	if v.Clean == nil {
		return false, fmt.Errorf("decode verdict: missing clean field")
	}

	return *v.Clean, nil
}
