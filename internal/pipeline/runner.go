package pipeline

import "sync"

// Runner supervises detached background tasks. A task submitted with Go
// outlives the request that triggered it; Wait blocks until every
// submitted task has finished, which lets shutdown drain in-flight jobs.
type Runner struct {
	wg sync.WaitGroup
}

func NewRunner() *Runner {
	return &Runner{}
}

// Go runs fn on its own goroutine, tracked until completion.
func (r *Runner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Wait blocks until all submitted tasks have completed.
func (r *Runner) Wait() {
	r.wg.Wait()
}
