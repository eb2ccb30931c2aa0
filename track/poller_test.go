package track

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

type scriptedStep struct {
	st  *gateway.StatusResponse
	err error
}

// scriptedFetcher replays a fixed sequence of status results; the last one
// repeats if the poller keeps asking.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

func (f *scriptedFetcher) Status(ctx context.Context, id string) (*gateway.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].st, f.steps[i].err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitDone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish in time")
	}
}

func TestPollerStopsExactlyOnTerminalPayload(t *testing.T) {
	f := &scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "queued", Progress: 0}},
		{st: &gateway.StatusResponse{Status: "processing", Progress: 40}},
		{st: &gateway.StatusResponse{Status: "processing", Progress: 85}},
		{st: &gateway.StatusResponse{Status: "completed", Progress: 100, OutputFile: "r.csv"}},
	}}
	tr := NewTracker(f, 10*time.Millisecond)
	kind := model.KindAddressBatch

	epoch := tr.Begin(kind, "")
	sub := tr.Acknowledge(kind, epoch, "j1", "accepted")
	if sub == nil {
		t.Fatal("acknowledge returned no subscription")
	}
	waitDone(t, sub)

	job, _ := tr.Job(kind)
	if job.Phase != model.PhaseCompleted || job.Progress != 100 || job.OutputRef != "r.csv" {
		t.Fatalf("final job = %+v", job)
	}

	// The loop stops the moment the terminal payload arrives, not on a
	// later tick.
	if got := f.callCount(); got != 4 {
		t.Fatalf("status queried %d times, want 4", got)
	}
	time.Sleep(50 * time.Millisecond)
	if got := f.callCount(); got != 4 {
		t.Fatalf("poller kept querying after terminal payload: %d calls", got)
	}
}

func TestPollerSwallowsTransientErrors(t *testing.T) {
	f := &scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "processing", Progress: 20}},
		{err: errors.New("connection reset")},
		{st: &gateway.StatusResponse{Status: "completed", Progress: 100, OutputFile: "out.csv"}},
	}}
	tr := NewTracker(f, 10*time.Millisecond)
	kind := model.KindAddressSplit

	epoch := tr.Begin(kind, "")
	sub := tr.Acknowledge(kind, epoch, "j1", "")
	waitDone(t, sub)

	job, _ := tr.Job(kind)
	if job.Phase != model.PhaseCompleted {
		t.Fatalf("a single failed probe must not fail the job: %+v", job)
	}
}

func TestStartPollingIdempotent(t *testing.T) {
	f := &scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "processing", Progress: 10}},
	}}
	tr := NewTracker(f, 10*time.Millisecond)
	kind := model.KindDatabaseTask

	epoch := tr.Begin(kind, "")
	sub := tr.Acknowledge(kind, epoch, "j1", "")
	defer sub.Stop()

	again := tr.StartPolling("j1")
	if again != sub {
		t.Fatal("second StartPolling must return the existing subscription")
	}
	if !sub.Active() {
		t.Fatal("subscription should be active while in flight")
	}
}

func TestStopPollingUnknownJobIsNoOp(t *testing.T) {
	tr := NewTracker(&scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "processing"}},
	}}, 10*time.Millisecond)

	tr.StopPolling("no-such-job")
	if sub := tr.StartPolling("no-such-job"); sub != nil {
		t.Fatal("unknown job id must not start a poller")
	}
}

func TestStopPollingHaltsProbes(t *testing.T) {
	f := &scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "processing", Progress: 10}},
	}}
	tr := NewTracker(f, 10*time.Millisecond)
	kind := model.KindAddressBatch

	epoch := tr.Begin(kind, "")
	sub := tr.Acknowledge(kind, epoch, "j1", "")

	tr.StopPolling("j1")
	if sub.Active() {
		t.Fatal("subscription still active after StopPolling returned")
	}

	calls := f.callCount()
	time.Sleep(50 * time.Millisecond)
	if f.callCount() != calls {
		t.Fatal("probes continued after StopPolling")
	}
}

// gatedFetcher parks every probe until released, then hands back its payload
// regardless of cancellation. It simulates a response that arrives after the
// submission it belongs to was superseded.
type gatedFetcher struct {
	release chan struct{}
	result  *gateway.StatusResponse
}

func (f *gatedFetcher) Status(ctx context.Context, id string) (*gateway.StatusResponse, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return f.result, nil
}

func TestSupersessionDropsLateResponse(t *testing.T) {
	f := &gatedFetcher{
		release: make(chan struct{}),
		result:  &gateway.StatusResponse{Status: "completed", Progress: 99, OutputFile: "stale.csv"},
	}
	tr := NewTracker(f, 10*time.Millisecond)
	kind := model.KindAddressBatch

	oldEpoch := tr.Begin(kind, "")
	oldSub := tr.Acknowledge(kind, oldEpoch, "old-job", "")
	if oldSub == nil {
		t.Fatal("no subscription for first submission")
	}

	// Second submission of the same kind supersedes the first while its
	// status request is still outstanding; Begin stops the old poller
	// synchronously.
	newEpoch := tr.Begin(kind, "")
	if oldSub.Active() {
		t.Fatal("superseded poller still active after Begin returned")
	}

	close(f.release) // the old response now "arrives"
	time.Sleep(30 * time.Millisecond)

	acknowledgeQuiet(t, tr, kind, newEpoch, "new-job")
	job, _ := tr.Job(kind)
	if job.ID != "new-job" || job.OutputRef != "" || job.Progress != 0 {
		t.Fatalf("late response for superseded job leaked into state: %+v", job)
	}
}

func TestCloseStopsAllPollers(t *testing.T) {
	f := &scriptedFetcher{steps: []scriptedStep{
		{st: &gateway.StatusResponse{Status: "processing", Progress: 10}},
	}}
	tr := NewTracker(f, 10*time.Millisecond)

	e1 := tr.Begin(model.KindAddressBatch, "")
	s1 := tr.Acknowledge(model.KindAddressBatch, e1, "a", "")
	e2 := tr.Begin(model.KindDatabaseTask, "")
	s2 := tr.Acknowledge(model.KindDatabaseTask, e2, "b", "")

	tr.Close()
	if s1.Active() || s2.Active() {
		t.Fatal("pollers survived Close")
	}
}
