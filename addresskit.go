// Package addresskit is a client for a remote address-standardization
// service. It submits long-running jobs (file uploads, address batches,
// database extracts), tracks each one to a terminal state by polling, and
// hands off to paginated result retrieval and artifact download.
package addresskit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/addresskit/addresskit/config"
	"github.com/addresskit/addresskit/dispatch"
	"github.com/addresskit/addresskit/estimate"
	"github.com/addresskit/addresskit/export"
	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/history"
	"github.com/addresskit/addresskit/model"
	"github.com/addresskit/addresskit/pager"
	"github.com/addresskit/addresskit/track"
)

// Client ties the gateway, dispatcher, tracker, pager and history store
// together. Multiple independent Clients can coexist; nothing here is a
// package-level singleton.
type Client struct {
	cfg        *config.Config
	gw         *gateway.Client
	dispatcher *dispatch.Dispatcher
	tracker    *track.Tracker
	historySt  *history.Store
	exporter   *export.Service
	redis      *redis.Client

	mu      sync.Mutex
	tickers map[model.JobKind]*estimate.Ticker
	pagers  map[model.JobKind]*pager.Pager
}

// New assembles a client from configuration. Redis is optional; without it
// the artifact-availability memory is in-process only.
func New(cfg *config.Config) *Client {
	gw := gateway.NewClient(&cfg.Gateway)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	c := &Client{
		cfg:        cfg,
		gw:         gw,
		dispatcher: dispatch.NewDispatcher(gw, validator.New()),
		tracker:    track.NewTracker(gw, time.Duration(cfg.Poll.Interval)*time.Second),
		historySt:  history.NewStore(gw, redisClient, cfg.History.Limit),
		exporter:   export.NewService(gw, cfg.Preview.PageSize),
		redis:      redisClient,
		tickers:    make(map[model.JobKind]*estimate.Ticker),
		pagers:     make(map[model.JobKind]*pager.Pager),
	}
	c.tracker.OnTerminal = c.onTerminal
	return c
}

// SubmitBatch submits a multi-address batch job and begins tracking it.
func (c *Client) SubmitBatch(ctx context.Context, req *model.BatchRequest) (model.Job, error) {
	return c.run(ctx, model.KindAddressBatch, "", "", func(ctx context.Context) (*dispatch.Submission, error) {
		return c.dispatcher.SubmitBatch(ctx, req)
	})
}

// SubmitSplit submits a free-text address split job. Split requests carry no
// server-side progress, so an advisory estimator clock is started alongside.
func (c *Client) SubmitSplit(ctx context.Context, req *model.SplitRequest) (model.Job, error) {
	return c.run(ctx, model.KindAddressSplit, "", req.Text, func(ctx context.Context) (*dispatch.Submission, error) {
		return c.dispatcher.SubmitSplit(ctx, req)
	})
}

// SubmitDatabase submits a database extract task.
func (c *Client) SubmitDatabase(ctx context.Context, req *model.DatabaseRequest) (model.Job, error) {
	return c.run(ctx, model.KindDatabaseTask, "", "", func(ctx context.Context) (*dispatch.Submission, error) {
		return c.dispatcher.SubmitDatabase(ctx, req)
	})
}

// SubmitUpload submits an address file.
func (c *Client) SubmitUpload(ctx context.Context, req *model.UploadRequest) (model.Job, error) {
	return c.run(ctx, model.KindFileUpload, req.Filename, "", func(ctx context.Context) (*dispatch.Submission, error) {
		return c.dispatcher.SubmitUpload(ctx, req)
	})
}

// SubmitCompare submits two address files for comparison.
func (c *Client) SubmitCompare(ctx context.Context, req *model.CompareRequest) (model.Job, error) {
	return c.run(ctx, model.KindCompareUpload, req.LeftFilename, "", func(ctx context.Context) (*dispatch.Submission, error) {
		return c.dispatcher.SubmitCompare(ctx, req)
	})
}

// run is the shared submit-and-track path: supersede the previous job of
// the kind, transition to submitting optimistically, dispatch, then either
// acknowledge (which starts polling) or record the failure. Validation
// failures never reach the network and return the job to idle.
func (c *Client) run(ctx context.Context, kind model.JobKind, filename, estimateText string, submit func(context.Context) (*dispatch.Submission, error)) (model.Job, error) {
	c.discardPager(kind)
	epoch := c.tracker.Begin(kind, filename)

	if estimateText != "" {
		c.replaceTicker(kind, estimate.Start(estimate.Seconds(estimateText)))
	}

	sub, err := submit(ctx)
	if err != nil {
		c.stopTicker(kind)
		var ve *dispatch.ValidationError
		if errors.As(err, &ve) {
			c.tracker.Reset(kind)
			return model.Job{}, err
		}
		c.tracker.FailSubmission(kind, epoch, err.Error())
		job, _ := c.tracker.Job(kind)
		return job, err
	}

	c.tracker.Acknowledge(kind, epoch, sub.JobID, sub.Message)
	job, _ := c.tracker.Job(kind)
	return job, nil
}

// Job returns a snapshot of the live job for a kind.
func (c *Client) Job(kind model.JobKind) (model.Job, bool) {
	return c.tracker.Job(kind)
}

// DisplayProgress returns the progress to render for a kind. Server-reported
// progress always wins the moment it is present; the estimator's synthetic
// fill is only consulted before the server has reported anything, and the
// two are never blended.
func (c *Client) DisplayProgress(kind model.JobKind) int {
	job, ok := c.tracker.Job(kind)
	if !ok {
		return 0
	}
	if job.Progress > 0 || !job.Phase.InFlight() {
		return job.Progress
	}
	c.mu.Lock()
	tk := c.tickers[kind]
	c.mu.Unlock()
	if tk != nil {
		return tk.Fill()
	}
	return job.Progress
}

// Ticker exposes the advisory clock for a kind, when one is running.
func (c *Client) Ticker(kind model.JobKind) *estimate.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[kind]
}

// StartPolling resumes polling for a known job id; it is idempotent while a
// poller for that id is active.
func (c *Client) StartPolling(jobID string) *track.Subscription {
	return c.tracker.StartPolling(jobID)
}

// StopPolling cancels the poller for a job id, if any.
func (c *Client) StopPolling(jobID string) {
	c.tracker.StopPolling(jobID)
}

// Reset returns a kind to idle: its poller and estimator clock are stopped
// before Reset returns, and its pager state is discarded.
func (c *Client) Reset(kind model.JobKind) {
	c.stopTicker(kind)
	c.tracker.Reset(kind)
	c.discardPager(kind)
}

// Results returns the pager for a kind's completed job, creating it on
// first use. The job must be completed and its artifact still within the
// expiry window.
func (c *Client) Results(kind model.JobKind) (*pager.Pager, error) {
	job, ok := c.tracker.Job(kind)
	if !ok || job.Phase != model.PhaseCompleted || job.OutputRef == "" {
		return nil, errors.New("no completed results for " + string(kind))
	}
	if job.ExpiredAt(time.Now()) {
		return nil, fmt.Errorf("%w: %s", gateway.ErrArtifactExpired, job.OutputRef)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pagers[kind]; p != nil && p.OutputRef() == job.OutputRef {
		return p, nil
	}
	p := pager.New(c.gw, job.OutputRef, c.cfg.Preview.PageSize)
	c.pagers[kind] = p
	return p, nil
}

// History returns the job history store.
func (c *Client) History() *history.Store {
	return c.historySt
}

// ExportResults drains a completed job's pages into an XLSX workbook.
func (c *Client) ExportResults(ctx context.Context, kind model.JobKind) ([]byte, error) {
	job, ok := c.tracker.Job(kind)
	if !ok || job.Phase != model.PhaseCompleted || job.OutputRef == "" {
		return nil, errors.New("no completed results for " + string(kind))
	}
	return c.exporter.ResultsXLSX(ctx, job.OutputRef)
}

// Close tears the client down, stopping all pollers and clocks.
func (c *Client) Close() {
	c.tracker.Close()
	c.mu.Lock()
	for _, tk := range c.tickers {
		tk.Stop()
	}
	c.tickers = make(map[model.JobKind]*estimate.Ticker)
	c.mu.Unlock()
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// onTerminal stops the advisory clock the moment its job leaves the
// in-flight phase.
func (c *Client) onTerminal(kind model.JobKind, _ model.Job) {
	c.stopTicker(kind)
}

func (c *Client) replaceTicker(kind model.JobKind, tk *estimate.Ticker) {
	c.mu.Lock()
	old := c.tickers[kind]
	c.tickers[kind] = tk
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

func (c *Client) stopTicker(kind model.JobKind) {
	c.mu.Lock()
	tk := c.tickers[kind]
	delete(c.tickers, kind)
	c.mu.Unlock()
	if tk != nil {
		tk.Stop()
	}
}

func (c *Client) discardPager(kind model.JobKind) {
	c.mu.Lock()
	delete(c.pagers, kind)
	c.mu.Unlock()
}
