package track

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

// StatusFetcher is the slice of the gateway the tracker polls through.
type StatusFetcher interface {
	Status(ctx context.Context, processingID string) (*gateway.StatusResponse, error)
}

// Tracker is the authoritative state container for live jobs: one tracked
// Job per kind, guarded by a mutex. Every submission gets a fresh epoch
// token; updates carrying a stale epoch are dropped, which is what makes
// superseding a job safe while its last request is still in flight.
type Tracker struct {
	mu       sync.Mutex
	fetcher  StatusFetcher
	interval time.Duration
	slots    map[model.JobKind]*slot

	// OnTerminal, when set, is invoked (outside the lock) after a job
	// reaches completed or error.
	OnTerminal func(kind model.JobKind, job model.Job)
}

// slot holds the live job for one kind.
type slot struct {
	epoch     string
	job       *model.Job
	poll      *Subscription
	lastLogTS time.Time
}

// NewTracker creates a tracker polling through the given fetcher at the
// given cadence.
func NewTracker(fetcher StatusFetcher, interval time.Duration) *Tracker {
	return &Tracker{
		fetcher:  fetcher,
		interval: interval,
		slots:    make(map[model.JobKind]*slot),
	}
}

// Begin starts a new submission for a kind, superseding any prior one. The
// prior poller is stopped before Begin returns and its late updates can no
// longer be applied. The returned epoch token authorizes all further updates
// for this submission.
func (t *Tracker) Begin(kind model.JobKind, filename string) string {
	t.mu.Lock()
	s := t.slots[kind]
	if s == nil {
		s = &slot{}
		t.slots[kind] = s
	}
	old := s.poll
	s.poll = nil
	s.epoch = uuid.New().String()
	s.lastLogTS = time.Time{}

	now := time.Now()
	s.job = &model.Job{
		Kind:      kind,
		Phase:     model.PhaseSubmitting,
		Filename:  filename,
		Message:   "Submitting...",
		CreatedAt: now,
	}
	s.job.AppendActivity(now, "Submission started")
	epoch := s.epoch
	t.mu.Unlock()

	if old != nil {
		log.Printf("[Tracker] superseding %s poller (job=%s)", kind, old.JobID())
		old.Stop()
	}
	return epoch
}

// Acknowledge records the gateway's acceptance of a submission and starts
// polling. A stale epoch is a no-op returning nil: the submission was
// superseded while its request was outstanding.
func (t *Tracker) Acknowledge(kind model.JobKind, epoch, jobID, message string) *Subscription {
	t.mu.Lock()
	s := t.slots[kind]
	if s == nil || s.epoch != epoch {
		t.mu.Unlock()
		log.Printf("[Tracker] dropping stale acknowledgment for superseded %s job %s", kind, jobID)
		return nil
	}
	now := time.Now()
	s.job.ID = jobID
	s.job.Phase = model.PhaseQueued
	if message != "" {
		s.job.Message = message
	}
	s.job.AppendActivity(now, "Job "+jobID+" accepted")
	sub := t.startPollingLocked(s, kind, jobID)
	t.mu.Unlock()
	return sub
}

// FailSubmission marks a submission that failed before or at acknowledgment.
// Stale epochs are dropped.
func (t *Tracker) FailSubmission(kind model.JobKind, epoch, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[kind]
	if s == nil || s.epoch != epoch {
		log.Printf("[Tracker] dropping stale failure for superseded %s submission", kind)
		return
	}
	now := time.Now()
	msg := message
	s.job.Phase = model.PhaseError
	s.job.Error = &msg
	s.job.Message = message
	s.job.FinishedAt = &now
	s.job.AppendActivity(now, message)
}

// Reset returns a kind to idle. Its poller is cancelled synchronously: when
// Reset returns, no further state mutation for the old submission can occur.
func (t *Tracker) Reset(kind model.JobKind) {
	t.mu.Lock()
	s := t.slots[kind]
	if s == nil {
		t.mu.Unlock()
		return
	}
	old := s.poll
	s.poll = nil
	s.epoch = uuid.New().String()
	s.job = &model.Job{Kind: kind, Phase: model.PhaseIdle}
	s.lastLogTS = time.Time{}
	t.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// Job returns a snapshot of the live job for a kind.
func (t *Tracker) Job(kind model.JobKind) (model.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[kind]
	if s == nil || s.job == nil {
		return model.Job{}, false
	}
	return snapshot(s.job), true
}

// Close stops every active poller, for teardown of the owning client.
func (t *Tracker) Close() {
	t.mu.Lock()
	var subs []*Subscription
	for _, s := range t.slots {
		if s.poll != nil {
			subs = append(subs, s.poll)
			s.poll = nil
		}
	}
	t.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

// apply feeds one status payload into the state machine. It returns true
// when the poll loop that delivered it should stop, either because the
// payload was terminal or because the submission it belongs to has been
// superseded.
func (t *Tracker) apply(kind model.JobKind, epoch, jobID string, st *gateway.StatusResponse) bool {
	t.mu.Lock()
	s := t.slots[kind]
	if s == nil || s.epoch != epoch || s.job == nil || s.job.ID != jobID {
		t.mu.Unlock()
		log.Printf("[Tracker] dropping stale status for job %s", jobID)
		return true
	}

	phase := model.PhaseForStatus(st.Status)
	if phase == "" {
		// The gateway client schema-checks payloads, so this is unreachable
		// in practice; quarantine rather than guess.
		t.mu.Unlock()
		log.Printf("[Tracker] quarantined status %q for job %s", st.Status, jobID)
		return false
	}

	job := s.job
	now := time.Now()

	// Last write wins; only the activity log is merged. Progress is the
	// exception: displayed progress never decreases for one job id, so a
	// regressed value is held at the high-water mark and logged.
	job.Phase = phase
	if st.Progress < job.Progress {
		log.Printf("[Tracker] anomaly: progress regressed %d -> %d for job %s, keeping %d", job.Progress, st.Progress, jobID, job.Progress)
	} else {
		job.Progress = st.Progress
	}
	if st.Message != "" {
		job.Message = st.Message
	}
	if st.OutputFile != "" {
		job.OutputRef = st.OutputFile
	}
	if st.ExpiresAt != nil {
		job.ExpiresAt = st.ExpiresAt
	}
	if len(st.Steps) > 0 {
		steps := make([]model.Step, 0, len(st.Steps))
		for _, sp := range st.Steps {
			steps = append(steps, model.Step{Name: sp.Name, Label: sp.Label, Threshold: sp.Target})
		}
		job.Steps = steps
	}
	if len(st.Logs) > 0 {
		for _, entry := range st.Logs {
			if entry.TS.After(s.lastLogTS) {
				job.AppendActivity(entry.TS, entry.Message)
				s.lastLogTS = entry.TS
			}
		}
	} else if st.Message != "" && st.Message != lastActivity(job) {
		job.AppendActivity(now, st.Message)
	}

	if phase == model.PhaseError {
		msg := st.Error
		if msg == "" {
			msg = st.Message
		}
		if msg == "" {
			msg = "Processing failed"
		}
		job.Error = &msg
		job.Message = msg
	}

	terminal := phase.Terminal()
	if terminal {
		job.FinishedAt = &now
		s.poll = nil
	}

	var hook func(model.JobKind, model.Job)
	var snap model.Job
	if terminal && t.OnTerminal != nil {
		hook = t.OnTerminal
		snap = snapshot(job)
	}
	t.mu.Unlock()

	if hook != nil {
		hook(kind, snap)
	}
	return terminal
}

func lastActivity(job *model.Job) string {
	if n := len(job.ActivityLog); n > 0 {
		return job.ActivityLog[n-1].Message
	}
	return ""
}

// snapshot copies a job so callers never share slices with the live record.
func snapshot(job *model.Job) model.Job {
	out := *job
	out.ActivityLog = append([]model.ActivityEntry(nil), job.ActivityLog...)
	out.Steps = append([]model.Step(nil), job.Steps...)
	return out
}
