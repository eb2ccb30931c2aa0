package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/addresskit/addresskit/config"
	"github.com/addresskit/addresskit/model"
)

// JobGateway defines the operations the remote job gateway exposes.
type JobGateway interface {
	SubmitBatch(ctx context.Context, req *model.BatchRequest) (*SubmitResponse, error)
	SubmitSplit(ctx context.Context, req *model.SplitRequest) (*SubmitResponse, error)
	SubmitDatabase(ctx context.Context, req *model.DatabaseRequest) (*SubmitResponse, error)
	SubmitUpload(ctx context.Context, req *model.UploadRequest) (*SubmitResponse, error)
	SubmitCompare(ctx context.Context, req *model.CompareRequest) (*SubmitResponse, error)
	Status(ctx context.Context, processingID string) (*StatusResponse, error)
	Preview(ctx context.Context, outputRef string, page, pageSize int) (*PreviewResponse, error)
	Download(ctx context.Context, outputRef string) (io.ReadCloser, error)
	Jobs(ctx context.Context, status string, limit, offset int) ([]model.HistoryEntry, error)
}

// Client implements JobGateway over HTTP.
type Client struct {
	// Submissions and downloads may legitimately take minutes; status and
	// preview probes get a short budget and are retried by the poller.
	submitClient *http.Client
	pollClient   *http.Client
	baseURL      string
	apiKey       string
}

// SubmitResponse is the gateway's acknowledgment of a new job.
type SubmitResponse struct {
	Message      string `json:"message"`
	ProcessingID string `json:"processing_id"`
}

// StatusResponse is one status payload for an in-flight or finished job.
type StatusResponse struct {
	Status     string         `json:"status"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message"`
	OutputFile string         `json:"output_file,omitempty"`
	Error      string         `json:"error,omitempty"`
	Logs       []LogEntry     `json:"logs,omitempty"`
	Steps      []StepInfo     `json:"steps,omitempty"`
	FileInfo   map[string]any `json:"file_info,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// LogEntry is one server-side activity line.
type LogEntry struct {
	TS      time.Time `json:"ts"`
	Message string    `json:"message"`
}

// StepInfo is a named milestone with the progress value at which it is
// considered reached.
type StepInfo struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Target int    `json:"target"`
}

// PreviewResponse is one page of result rows.
type PreviewResponse struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type errorBody struct {
	Error string `json:"error"`
}

// jobRecord is the wire shape of one history listing entry.
type jobRecord struct {
	JobID      string     `json:"job_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	Filename   string     `json:"filename,omitempty"`
	OutputFile string     `json:"output_file,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		submitClient: &http.Client{Timeout: time.Duration(cfg.SubmitTimeout) * time.Second},
		pollClient:   &http.Client{Timeout: time.Duration(cfg.PollTimeout) * time.Second},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
	}
}

// IsConfigured returns true if the client has a gateway to talk to.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// SubmitBatch submits a multi-address batch job.
func (c *Client) SubmitBatch(ctx context.Context, req *model.BatchRequest) (*SubmitResponse, error) {
	return c.submitJSON(ctx, "/api/process/batch", req)
}

// SubmitSplit submits a free-text address split job.
func (c *Client) SubmitSplit(ctx context.Context, req *model.SplitRequest) (*SubmitResponse, error) {
	return c.submitJSON(ctx, "/api/process/split", req)
}

// SubmitDatabase submits a database extract job.
func (c *Client) SubmitDatabase(ctx context.Context, req *model.DatabaseRequest) (*SubmitResponse, error) {
	return c.submitJSON(ctx, "/api/process/database", req)
}

// Status retrieves the current status payload for a job. The raw payload is
// schema-checked before it is trusted.
func (c *Client) Status(ctx context.Context, processingID string) (*StatusResponse, error) {
	endpoint := "/api/status/" + url.PathEscape(processingID)
	body, err := c.get(ctx, c.pollClient, endpoint)
	if err != nil {
		return nil, err
	}
	if err := validateStatusPayload(body); err != nil {
		return nil, err
	}
	var result StatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &result, nil
}

// Preview fetches one page of result rows for an output file.
func (c *Client) Preview(ctx context.Context, outputRef string, page, pageSize int) (*PreviewResponse, error) {
	endpoint := fmt.Sprintf("/api/preview/%s?page=%d&page_size=%d",
		url.PathEscape(outputRef), page, pageSize)
	body, err := c.get(ctx, c.pollClient, endpoint)
	if err != nil {
		return nil, artifactError(outputRef, err)
	}
	var result PreviewResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preview: %w", err)
	}
	return &result, nil
}

// Jobs lists previously submitted jobs, optionally filtered by status on the
// server side.
func (c *Client) Jobs(ctx context.Context, status string, limit, offset int) ([]model.HistoryEntry, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, err := c.get(ctx, c.pollClient, "/api/jobs?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var result struct {
		Jobs []jobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jobs: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(result.Jobs))
	for _, j := range result.Jobs {
		entries = append(entries, model.HistoryEntry{
			JobID:      j.JobID,
			KindLabel:  model.JobKind(j.Kind).Label(),
			Status:     j.Status,
			Progress:   j.Progress,
			Filename:   j.Filename,
			OutputRef:  j.OutputFile,
			CreatedAt:  j.CreatedAt,
			FinishedAt: j.FinishedAt,
			ExpiresAt:  j.ExpiresAt,
		})
	}
	return entries, nil
}

// submitJSON sends a JSON submission and normalizes the acknowledgment.
func (c *Client) submitJSON(ctx context.Context, endpoint string, body any) (*SubmitResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(c.submitClient, req)
	if err != nil {
		return nil, err
	}

	var result SubmitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// get sends a GET request and returns the raw response body.
func (c *Client) get(ctx context.Context, httpClient *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(httpClient, req)
}

// do executes a request, logs the exchange and maps failure modes onto the
// error taxonomy.
func (c *Client) do(httpClient *http.Client, req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Gateway] → %s %s", req.Method, req.URL.String())

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Printf("[Gateway] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		if te := asTimeout(req.Method+" "+req.URL.Path, err); te != nil {
			return nil, te
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Gateway] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		return nil, &StatusError{Code: resp.StatusCode, Message: eb.Error}
	}

	return respBody, nil
}
