package app

import (
	"context"
	"sync"
)

// runPool feeds items to a fixed number of workers and waits for all of them.
// fn must handle its own errors; a failing item never stops the others.
func runPool[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, workerID int, item T)) {
	if len(items) == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	queue := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for item := range queue {
				fn(ctx, id, item)
			}
		}(i)
	}

	for _, item := range items {
		queue <- item
	}
	close(queue)
	wg.Wait()
}
