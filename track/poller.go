package track

import (
	"context"
	"log"
	"time"

	"github.com/addresskit/addresskit/model"
)

// Subscription is the handle for one recurring status poll. Stopping it is
// an explicit operation; it is also stopped automatically the moment a
// terminal payload arrives.
type Subscription struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// JobID returns the job this subscription polls.
func (s *Subscription) JobID() string {
	return s.jobID
}

// Active reports whether the poll loop is still running.
func (s *Subscription) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed when the poll loop has fully exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the subscription and waits for the loop to exit, so no
// update can be applied through it after Stop returns.
func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

// StartPolling starts polling for a live job id. It is idempotent: while a
// poller for that job id is active, the existing subscription is returned
// and no second loop is created. Unknown job ids return nil.
func (t *Tracker) StartPolling(jobID string) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind, s := range t.slots {
		if s.job != nil && s.job.ID == jobID {
			return t.startPollingLocked(s, kind, jobID)
		}
	}
	return nil
}

// StopPolling stops the active poller for a job id. Stopping an unknown or
// already-stopped poller is a no-op.
func (t *Tracker) StopPolling(jobID string) {
	t.mu.Lock()
	var sub *Subscription
	for _, s := range t.slots {
		if s.poll != nil && s.poll.jobID == jobID {
			sub = s.poll
			s.poll = nil
			break
		}
	}
	t.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// startPollingLocked starts (or reuses) the poll loop for a slot. Caller
// holds t.mu.
func (t *Tracker) startPollingLocked(s *slot, kind model.JobKind, jobID string) *Subscription {
	if s.poll != nil && s.poll.jobID == jobID && s.poll.Active() {
		return s.poll
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	s.poll = sub
	go t.pollLoop(ctx, sub, kind, s.epoch, jobID)
	return sub
}

// pollLoop probes status immediately, then on a fixed cadence. Requests are
// strictly sequential: the next tick is not armed until the previous probe
// has settled, so a slow response cannot pile up overlapping requests. A
// failed probe is logged and retried on the next tick; only an explicit
// terminal payload (or cancellation) ends the loop.
func (t *Tracker) pollLoop(ctx context.Context, sub *Subscription, kind model.JobKind, epoch, jobID string) {
	defer close(sub.done)
	attempt := 0

	for {
		attempt++
		result, err := t.fetcher.Status(ctx, jobID)
		if ctx.Err() != nil {
			// Cancelled while the request was in flight; whatever came back
			// belongs to a superseded or reset submission.
			log.Printf("[Poller] probe #%d (job=%s) — cancelled", attempt, jobID)
			return
		}
		if err != nil {
			log.Printf("[Poller] probe #%d (job=%s) — transient error: %v", attempt, jobID, err)
		} else {
			log.Printf("[Poller] probe #%d (job=%s) — status: %s (%d%%)", attempt, jobID, result.Status, result.Progress)
			if t.apply(kind, epoch, jobID, result) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.interval):
		}
	}
}
