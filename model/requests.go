package model

import "io"

// BatchRequest submits up to 1000 addresses for standardization.
type BatchRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,max=1000,dive,required"`
}

// SplitRequest submits free text containing one or more concatenated
// addresses for splitting.
type SplitRequest struct {
	Text string `json:"text" validate:"required"`
}

// DatabaseRequest submits a database extract task. Either a table with at
// least one column, or a raw query, must be provided; the cross-field rule
// is enforced by the dispatcher.
type DatabaseRequest struct {
	ConnectionString string   `json:"connection_string" validate:"required"`
	Table            string   `json:"table,omitempty"`
	Columns          []string `json:"columns,omitempty"`
	Query            string   `json:"query,omitempty"`
}

// UploadRequest submits an address file. Progress, when set, receives
// monotonic 0–100 byte-level upload progress before a job id exists; it is
// distinct from the job's post-acknowledgment progress.
type UploadRequest struct {
	Filename string
	Content  io.Reader
	Progress func(pct int)
}

// CompareRequest submits two address files for comparison.
type CompareRequest struct {
	LeftFilename  string
	Left          io.Reader
	RightFilename string
	Right         io.Reader
	Progress      func(pct int)
}
