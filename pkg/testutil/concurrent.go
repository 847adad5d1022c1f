package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
)

// ConcurrentResult counts outcomes of parallel submissions against one key.
type ConcurrentResult struct {
	Successes   int32
	Unavailable int32
	NotFounds   int32
	Errors      int32
}

// Total returns how many calls ran.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Unavailable + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines behind a shared gate so they hit the code
// under test together, then buckets the returned errors. Lock and store
// timeouts land in Unavailable whether they come back as a sentinel or a
// translated domain error.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                  sync.WaitGroup
		gate                                = make(chan struct{})
		successes, unavailable, notFound, e atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-gate
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrUnavailable), dErrors.HasCode(err, dErrors.CodeUnavailable):
				unavailable.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				notFound.Add(1)
			default:
				e.Add(1)
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Unavailable: unavailable.Load(),
		NotFounds:   notFound.Load(),
		Errors:      e.Load(),
	}
}
