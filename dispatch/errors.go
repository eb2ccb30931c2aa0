package dispatch

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

// ValidationError is malformed local input; it never reaches the network.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string, err error) *ValidationError {
	return &ValidationError{Message: message, Fields: formatValidationErrors(err)}
}

// formatValidationErrors formats validator errors per field
func formatValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// SubmitError is a submission that failed before a job id was obtained. The
// gateway's own message is carried verbatim when it supplied one; Timeout
// marks network timeouts so callers can say processing may still be running
// in the background rather than that it failed outright.
type SubmitError struct {
	Kind    model.JobKind
	Message string
	Timeout bool
	cause   error
}

func (e *SubmitError) Error() string {
	return e.Message
}

func (e *SubmitError) Unwrap() error {
	return e.cause
}

func wrapSubmitError(kind model.JobKind, err error) *SubmitError {
	var te *gateway.TimeoutError
	if errors.As(err, &te) {
		return &SubmitError{Kind: kind, Message: te.Error(), Timeout: true, cause: err}
	}
	var se *gateway.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return &SubmitError{Kind: kind, Message: se.Message, cause: err}
	}
	return &SubmitError{Kind: kind, Message: fallbackMessage(kind), cause: err}
}

// fallbackMessage is the per-kind generic failure string used when the
// gateway did not supply one.
func fallbackMessage(kind model.JobKind) string {
	switch kind {
	case model.KindFileUpload:
		return "File upload failed"
	case model.KindCompareUpload:
		return "Comparison upload failed"
	case model.KindAddressBatch:
		return "Batch submission failed"
	case model.KindAddressSplit:
		return "Address split failed"
	case model.KindDatabaseTask:
		return "Database task submission failed"
	default:
		return "Submission failed"
	}
}
