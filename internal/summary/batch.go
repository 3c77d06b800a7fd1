package summary

import (
	"context"
	"sync"

	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"golang.org/x/sync/errgroup"
)

// DefaultJobs is the default number of concurrent summary requests.
const DefaultJobs = 3

// Result is the outcome of one request in a batch.
type Result struct {
	Request Request
	Record  *Record
	Err     error
}

// SummarizeAll runs reqs with at most jobs requests in flight. Results are
// returned in request order. An authentication failure cancels requests that
// have not started, since every other request would fail the same way.
// progress is called once per request, never concurrently.
func (s *Service) SummarizeAll(ctx context.Context, reqs []Request, jobs int, progress func(Result)) []Result {
	if jobs < 1 {
		jobs = 1
	}

	results := make([]Result, len(reqs))
	var mu sync.Mutex
	report := func(r Result) {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		progress(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, req := range reqs {
		results[i].Request = req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				report(results[i])
				return nil
			}
			rec, err := s.Summarize(gctx, req)
			results[i].Record = rec
			results[i].Err = err
			report(results[i])
			if openrouter.IsAuth(err) {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
