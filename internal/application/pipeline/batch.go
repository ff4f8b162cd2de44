package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// BatchResult pairs a job's report with its error; exactly one is set.
type BatchResult struct {
	Report *safeguarding.SafeguardingReport
	Err    error
}

// RunBatch runs independent sessions concurrently, at most
// maxConcurrentSessions at a time. Results are in job order. One job failing
// does not stop the others; a cancelled ctx fails jobs not yet started.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []Job) []BatchResult {
	results := make([]BatchResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)
	for i, job := range jobs {
		g.Go(func() error {
			rep, err := o.Run(ctx, job)
			results[i] = BatchResult{Report: rep, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
