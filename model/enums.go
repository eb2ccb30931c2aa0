package model

// Job kinds
type JobKind string

const (
	KindFileUpload    JobKind = "file-upload"
	KindCompareUpload JobKind = "compare-upload"
	KindAddressBatch  JobKind = "address-batch"
	KindAddressSplit  JobKind = "address-split"
	KindDatabaseTask  JobKind = "database-task"
)

var ValidKinds = []JobKind{
	KindFileUpload, KindCompareUpload, KindAddressBatch,
	KindAddressSplit, KindDatabaseTask,
}

// Label returns the human-readable name used in history listings.
func (k JobKind) Label() string {
	switch k {
	case KindFileUpload:
		return "File Upload"
	case KindCompareUpload:
		return "Compare Upload"
	case KindAddressBatch:
		return "Address Batch"
	case KindAddressSplit:
		return "Address Split"
	case KindDatabaseTask:
		return "Database Task"
	default:
		return string(k)
	}
}

// Job lifecycle phases
type JobPhase string

const (
	PhaseIdle       JobPhase = "idle"
	PhaseSubmitting JobPhase = "submitting"
	PhaseQueued     JobPhase = "queued"
	PhaseProcessing JobPhase = "processing"
	PhaseCompleted  JobPhase = "completed"
	PhaseError      JobPhase = "error"
	PhaseExpired    JobPhase = "expired"
)

// Terminal reports whether no further polling should occur for this phase.
// Expired is a derived display state, never observed from the gateway.
func (p JobPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// InFlight reports whether the job is between acknowledgment and a terminal
// payload.
func (p JobPhase) InFlight() bool {
	return p == PhaseSubmitting || p == PhaseQueued || p == PhaseProcessing
}

// Gateway status strings as they appear on the wire.
const (
	StatusUploaded   = "uploaded"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusFailed     = "failed"
)

// PhaseForStatus normalizes a gateway status string into a phase. "uploaded"
// and "queued" are the same thing to every consumer; "error" and "failed"
// likewise. Unknown statuses map to the empty phase so the caller can
// quarantine them.
func PhaseForStatus(status string) JobPhase {
	switch status {
	case StatusUploaded, StatusQueued:
		return PhaseQueued
	case StatusProcessing:
		return PhaseProcessing
	case StatusCompleted:
		return PhaseCompleted
	case StatusError, StatusFailed:
		return PhaseError
	default:
		return ""
	}
}
