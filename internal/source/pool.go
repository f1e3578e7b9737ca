package source

import (
	"context"
	"runtime/debug"
	"sync"

	"oapmon/internal/logger"
)

// fanOut runs fn(i) for every index 0..n-1 on a bounded number of
// workers and waits for completion. Callers write results into
// index-addressed slots, so output order stays deterministic no matter
// how the pool schedules the work.
func fanOut(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if workers <= 0 {
		workers = 4
	}
	if workers > n {
		workers = n
	}

	indices := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			log := logger.WithComponent("fetch_pool").With().Int("worker_id", id).Logger()

			for i := range indices {
				// Panic recovery: a panic on one target must not take
				// down the rest of the batch
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().
								Interface("panic", r).
								Int("target_index", i).
								Bytes("stack", debug.Stack()).
								Msg("fetch worker panic recovered")
						}
					}()
					fn(ctx, i)
				}()
			}
		}(w)
	}

	for i := 0; i < n; i++ {
		select {
		case indices <- i:
		case <-ctx.Done():
			close(indices)
			wg.Wait()
			return
		}
	}
	close(indices)
	wg.Wait()
}
