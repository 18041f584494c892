package crawler

import (
	"context"
	"sync"

	"github.com/hyz2023/odps-crawler/internal/logging"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// fanOut feeds table names to a bounded worker pool and returns the results
// channel. Workers fetch in parallel; the single aggregator in Run keeps the
// snapshot, counters, and checkpoints free of locking.
func (s *Session) fanOut(ctx context.Context, names []string, prior map[string]*warehouse.TableMetadata) <-chan tableResult {
	workers := s.opts.Concurrency
	work := make(chan string)
	results := make(chan tableResult, workers)

	go func() {
		defer close(work)
		for _, name := range names {
			select {
			case work <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := logging.WorkerLogger(workerID).With("project", s.opts.Project)
			for name := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results <- s.processTable(ctx, log, name, prior[name])
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
