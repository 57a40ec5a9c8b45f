package client

import (
	"context"
	"errors"
	"sync"
)

// ErrPollInProgress is returned by Start while a previous poll is still
// running. One poller tracks one job at a time.
var ErrPollInProgress = errors.New("a poll is already in progress")

// Result is the single value a poll delivers: the outcome on success, the
// error otherwise.
type Result struct {
	Outcome Outcome
	Err     error
}

// Poller runs PollStatus in the background and guards against starting a
// second poll while one is active.
type Poller struct {
	client *Client

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(c *Client) *Poller {
	return &Poller{client: c}
}

// Start begins polling the job and returns a channel that receives exactly
// one Result. Starting while a poll is active fails with ErrPollInProgress.
func (p *Poller) Start(ctx context.Context, jobID string) (<-chan Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return nil, ErrPollInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	p.active = true
	p.cancel = cancel
	p.done = make(chan struct{})

	results := make(chan Result, 1)
	go func(done chan struct{}) {
		outcome, err := p.client.PollStatus(ctx, jobID)

		// Release the slot before delivering, so a caller reacting to the
		// result can start the next poll right away.
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		cancel()

		results <- Result{Outcome: outcome, Err: err}
		close(done)
	}(p.done)

	return results, nil
}

// Stop cancels the active poll, if any, and waits for it to wind down. The
// result channel still receives its one value, a context error.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether a poll is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
