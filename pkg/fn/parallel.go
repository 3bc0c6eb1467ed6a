package fn

import "sync"

// ParMap applies f to each element with at most workers goroutines,
// preserving input order in the output.
func ParMap[T, U any](items []T, workers int, f func(T) U) []U {
	out := make([]U, len(items))
	run(items, workers, func(i int, v T) {
		out[i] = f(v)
	})
	return out
}

// ParMapResult is ParMap for fallible functions; results keep input order.
func ParMapResult[T, U any](items []T, workers int, f func(T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	run(items, workers, func(i int, v T) {
		out[i] = f(v)
	})
	return out
}

func run[T any](items []T, workers int, f func(int, T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			f(i, v)
		}(i, v)
	}
	wg.Wait()
}
