package model

import "time"

// MaxActivityEntries bounds the activity log kept on a job; callers display
// only the most recent entries anyway.
const MaxActivityEntries = 50

// Job represents one tracked unit of submitted work, from submission to a
// terminal outcome.
type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Phase      JobPhase   `json:"phase"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	OutputRef  string     `json:"outputRef,omitempty"`
	Error      *string    `json:"error,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`

	ActivityLog []ActivityEntry `json:"activityLog,omitempty"`
	Steps       []Step          `json:"steps,omitempty"`
}

// ActivityEntry is one line of the recent-activity log, newest appended last.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Step is a named milestone; it is reached once progress crosses its
// threshold.
type Step struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Threshold int    `json:"threshold"`
}

// Reached reports whether the job's progress has crossed the step threshold.
func (s Step) Reached(progress int) bool {
	return progress >= s.Threshold
}

// ExpiredAt reports whether the job's artifact is past its expiry window at
// the given instant. Expiry is always derived at read time; it is never a
// stored phase transition.
func (j *Job) ExpiredAt(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// DisplayPhase returns the phase for presentation, substituting expired for
// completed once the artifact window has elapsed.
func (j *Job) DisplayPhase(now time.Time) JobPhase {
	if j.Phase == PhaseCompleted && j.ExpiredAt(now) {
		return PhaseExpired
	}
	return j.Phase
}

// AppendActivity appends an entry to the activity log, trimming the oldest
// entries past the bound.
func (j *Job) AppendActivity(ts time.Time, message string) {
	j.ActivityLog = append(j.ActivityLog, ActivityEntry{Timestamp: ts, Message: message})
	if n := len(j.ActivityLog); n > MaxActivityEntries {
		j.ActivityLog = j.ActivityLog[n-MaxActivityEntries:]
	}
}
