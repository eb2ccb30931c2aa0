package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

// allowedExtensions is the upload allow-list. Checked locally, before any
// bytes go over the wire.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xls":  true,
	".xlsx": true,
}

var columnNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Submission is the normalized acknowledgment of a successful submit.
type Submission struct {
	Message string
	JobID   string
}

// Dispatcher validates payloads locally and issues the initiating gateway
// call for each job kind.
type Dispatcher struct {
	gw       gateway.JobGateway
	validate *validator.Validate
}

func NewDispatcher(gw gateway.JobGateway, v *validator.Validate) *Dispatcher {
	return &Dispatcher{gw: gw, validate: v}
}

// SubmitBatch dispatches a multi-address batch job.
func (d *Dispatcher) SubmitBatch(ctx context.Context, req *model.BatchRequest) (*Submission, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, newValidationError("Invalid address batch", err)
	}
	for _, addr := range req.Addresses {
		if strings.TrimSpace(addr) == "" {
			return nil, newValidationError("Addresses must not be blank", nil)
		}
	}
	resp, err := d.gw.SubmitBatch(ctx, req)
	return d.normalize(model.KindAddressBatch, resp, err)
}

// SubmitSplit dispatches a free-text address split job.
func (d *Dispatcher) SubmitSplit(ctx context.Context, req *model.SplitRequest) (*Submission, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, newValidationError("Input text is required", err)
	}
	resp, err := d.gw.SubmitSplit(ctx, req)
	return d.normalize(model.KindAddressSplit, resp, err)
}

// SubmitDatabase dispatches a database extract task. The payload needs a
// connection string plus either a table with at least one valid column name,
// or a raw query.
func (d *Dispatcher) SubmitDatabase(ctx context.Context, req *model.DatabaseRequest) (*Submission, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, newValidationError("Connection string is required", err)
	}
	if req.Query == "" {
		if req.Table == "" {
			return nil, newValidationError("Provide a table name or a query", nil)
		}
		valid := 0
		for _, col := range req.Columns {
			if columnNameRe.MatchString(col) {
				valid++
			}
		}
		if valid == 0 {
			return nil, newValidationError("Provide at least one valid column name", nil)
		}
	}
	resp, err := d.gw.SubmitDatabase(ctx, req)
	return d.normalize(model.KindDatabaseTask, resp, err)
}

// SubmitUpload dispatches a file upload job.
func (d *Dispatcher) SubmitUpload(ctx context.Context, req *model.UploadRequest) (*Submission, error) {
	if err := checkUploadFile(req.Filename, req.Content != nil); err != nil {
		return nil, err
	}
	resp, err := d.gw.SubmitUpload(ctx, req)
	return d.normalize(model.KindFileUpload, resp, err)
}

// SubmitCompare dispatches a two-file comparison job.
func (d *Dispatcher) SubmitCompare(ctx context.Context, req *model.CompareRequest) (*Submission, error) {
	if err := checkUploadFile(req.LeftFilename, req.Left != nil); err != nil {
		return nil, err
	}
	if err := checkUploadFile(req.RightFilename, req.Right != nil); err != nil {
		return nil, err
	}
	resp, err := d.gw.SubmitCompare(ctx, req)
	return d.normalize(model.KindCompareUpload, resp, err)
}

func checkUploadFile(filename string, hasContent bool) error {
	if filename == "" || !hasContent {
		return newValidationError("A file is required", nil)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return newValidationError(fmt.Sprintf("file extension not allowed: %s", ext), nil)
	}
	return nil
}

// normalize turns a gateway acknowledgment or failure into the
// {message, jobID} pair or a SubmitError.
func (d *Dispatcher) normalize(kind model.JobKind, resp *gateway.SubmitResponse, err error) (*Submission, error) {
	if err != nil {
		return nil, wrapSubmitError(kind, err)
	}
	if resp.ProcessingID == "" {
		return nil, &SubmitError{Kind: kind, Message: fallbackMessage(kind),
			cause: errors.New("gateway acknowledged without a processing id")}
	}
	return &Submission{Message: resp.Message, JobID: resp.ProcessingID}, nil
}
