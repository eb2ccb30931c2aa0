package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/addresskit/addresskit/model"
)

// uploadPart is one file attached to a multipart submission.
type uploadPart struct {
	field    string
	filename string
	content  io.Reader
}

// SubmitUpload submits a single address file.
func (c *Client) SubmitUpload(ctx context.Context, req *model.UploadRequest) (*SubmitResponse, error) {
	parts := []uploadPart{{field: "file", filename: req.Filename, content: req.Content}}
	return c.submitMultipart(ctx, "/api/process/upload", parts, req.Progress)
}

// SubmitCompare submits two address files for comparison.
func (c *Client) SubmitCompare(ctx context.Context, req *model.CompareRequest) (*SubmitResponse, error) {
	parts := []uploadPart{
		{field: "left", filename: req.LeftFilename, content: req.Left},
		{field: "right", filename: req.RightFilename, content: req.Right},
	}
	return c.submitMultipart(ctx, "/api/process/compare", parts, req.Progress)
}

// submitMultipart builds a multipart body and streams it to the gateway,
// reporting byte-level progress through the callback while the request body
// is consumed.
func (c *Client) submitMultipart(ctx context.Context, endpoint string, parts []uploadPart, progress func(int)) (*SubmitResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := writer.CreateFormFile(p.field, p.filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(fw, p.content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p.filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	body := io.Reader(&buf)
	if progress != nil {
		body = &progressReader{r: &buf, total: int64(buf.Len()), report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

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

// progressReader reports monotonic percentage progress as the wrapped body
// is read by the transport.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	report  func(int)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.read += int64(n)
	if pr.total > 0 {
		pct := int(pr.read * 100 / pr.total)
		if pct > 100 {
			pct = 100
		}
		if pct > pr.lastPct {
			pr.lastPct = pct
			pr.report(pct)
		}
	}
	return n, err
}
