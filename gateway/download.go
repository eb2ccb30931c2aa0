package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
)

// Download streams a completed job's output file. A missing artifact and an
// expired artifact surface as distinguishable errors.
func (c *Client) Download(ctx context.Context, outputRef string) (io.ReadCloser, error) {
	endpoint := "/api/download/" + url.PathEscape(outputRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Gateway] → GET %s", req.URL.String())

	// Downloads can be large; use the long-budget client and hand the body
	// back unread.
	resp, err := c.submitClient.Do(req)
	if err != nil {
		if te := asTimeout("download "+outputRef, err); te != nil {
			return nil, te
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	log.Printf("[Gateway] ← %d GET %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, artifactError(outputRef, &StatusError{Code: resp.StatusCode, Message: eb.Error})
	}

	return resp.Body, nil
}
