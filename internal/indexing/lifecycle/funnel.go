package lifecycle

import "context"

// funnelJob is one unit of work submitted to the write funnel: an opaque
// closure over whatever storage mutation the engine needs, plus a channel
// the submitter blocks on for the result.
type funnelJob struct {
	fn   func() error
	done chan struct{}
	err  error
}

// writeFunnel serializes every storage mutation across every chain
// collector through a single goroutine draining one bounded channel, so
// the single-writer SQLite handle is never contended from multiple
// goroutines at once. Submit blocks until the job has run, letting the
// caller make metrics decisions synchronously on the result.
type writeFunnel struct {
	jobs chan funnelJob
	done chan struct{}
}

const funnelCapacity = 1024

func newWriteFunnel() *writeFunnel {
	f := &writeFunnel{
		jobs: make(chan funnelJob, funnelCapacity),
		done: make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *writeFunnel) run() {
	defer close(f.done)
	for j := range f.jobs {
		j.err = j.fn()
		close(j.done)
	}
}

// submit enqueues fn and blocks until it has run, returning its error.
// Blocks on ctx cancellation while waiting for a free slot in the queue;
// once accepted, fn always runs to completion (it may itself be ctx-aware).
func (f *writeFunnel) submit(ctx context.Context, fn func() error) error {
	j := funnelJob{fn: fn, done: make(chan struct{})}
	select {
	case f.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-j.done
	return j.err
}

// close stops accepting new jobs and waits for the drain goroutine to exit.
func (f *writeFunnel) close() {
	close(f.jobs)
	<-f.done
}
