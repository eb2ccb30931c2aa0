// Package pager fetches a completed job's result rows in fixed-size pages.
// A Pager belongs to one output file; it is discarded and recreated on
// reset, so page 1 after a reset always re-fetches.
package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

// ErrLoadInFlight is returned when a page load is requested while another
// one has not yet settled. Loads are strictly one at a time.
var ErrLoadInFlight = errors.New("a page load is already in flight")

// Previewer is the slice of the gateway the pager reads through.
type Previewer interface {
	Preview(ctx context.Context, outputRef string, page, pageSize int) (*gateway.PreviewResponse, error)
}

// Pager tracks the current page of one job's results.
type Pager struct {
	gw        Previewer
	outputRef string
	pageSize  int

	mu       sync.Mutex
	inFlight bool
	columns  []string
	current  model.Page
	loaded   bool
}

// New creates a pager for one output file.
func New(gw Previewer, outputRef string, pageSize int) *Pager {
	return &Pager{gw: gw, outputRef: outputRef, pageSize: pageSize}
}

// OutputRef returns the output file this pager reads.
func (p *Pager) OutputRef() string {
	return p.outputRef
}

// LoadPage fetches one page. Page numbers start at 1. The column set is
// frozen on the first successful load; later pages refresh row data only,
// even if the backend reorders its columns. The last page is derived: a
// short page (fewer rows than pageSize) is the last one.
func (p *Pager) LoadPage(ctx context.Context, pageNumber int) (model.Page, error) {
	if pageNumber < 1 {
		return model.Page{}, fmt.Errorf("page number must be >= 1, got %d", pageNumber)
	}

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return model.Page{}, ErrLoadInFlight
	}
	p.inFlight = true
	p.mu.Unlock()

	resp, err := p.gw.Preview(ctx, p.outputRef, pageNumber, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if err != nil {
		return model.Page{}, err
	}

	if p.columns == nil {
		p.columns = append([]string(nil), resp.Columns...)
	}

	page := model.Page{
		PageNumber: pageNumber,
		PageSize:   p.pageSize,
		Columns:    p.columns,
		Rows:       resp.Rows,
		IsLastPage: len(resp.Rows) < p.pageSize,
	}
	p.current = page
	p.loaded = true
	return page, nil
}

// Next loads the following page. It fails when the current page is the last.
func (p *Pager) Next(ctx context.Context) (model.Page, error) {
	p.mu.Lock()
	if !p.loaded || p.current.IsLastPage {
		p.mu.Unlock()
		return model.Page{}, errors.New("no next page")
	}
	n := p.current.PageNumber + 1
	p.mu.Unlock()
	return p.LoadPage(ctx, n)
}

// Prev loads the preceding page. It fails on page 1.
func (p *Pager) Prev(ctx context.Context) (model.Page, error) {
	p.mu.Lock()
	if !p.loaded || p.current.PageNumber <= 1 {
		p.mu.Unlock()
		return model.Page{}, errors.New("no previous page")
	}
	n := p.current.PageNumber - 1
	p.mu.Unlock()
	return p.LoadPage(ctx, n)
}

// Current returns the last loaded page.
func (p *Pager) Current() (model.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.loaded
}

// CanNext reports whether a "next" action should be enabled.
func (p *Pager) CanNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && !p.current.IsLastPage
}

// CanPrev reports whether a "prev" action should be enabled.
func (p *Pager) CanPrev() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded && p.current.PageNumber > 1
}
