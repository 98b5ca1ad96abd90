package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rhttp "github.com/fyrsmithlabs/ragserve/internal/http"
)

const defaultTimeout = 30 * time.Second

// client calls the ragserve API. Fields are bound to persistent flags.
type client struct {
	baseURL string
	timeout time.Duration
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   rhttp.ErrorResponse
	Raw    string
}

func (e *apiError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, strings.TrimSpace(e.Raw))
	}
	if e.Body.Kind != "" {
		return fmt.Sprintf("server returned status %d (%s): %s", e.Status, e.Body.Kind, e.Body.Error)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body.Error)
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out
// (when non-nil).
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &apiError{Status: resp.StatusCode, Raw: string(raw)}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
