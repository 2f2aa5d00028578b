package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// ShardOptions configures the multi-root shard reader.
type ShardOptions struct {
	Roots      map[string][]string
	Seed       int64
	NumWorkers int
	PendingCap int
}

// ReadShards reads every shard under opts.Roots exactly once into a batch.
// Shards are visited round-robin across roots in a seeded order and streamed
// by NumWorkers workers; samples are emitted in job order regardless of which
// worker finishes first, so the result is deterministic for a given seed.
func ReadShards(parent context.Context, opts ShardOptions) (SampleBatch, error) {
	if len(opts.Roots) == 0 {
		return SampleBatch{}, errors.New("sampler: no dataset roots provided")
	}
	total := 0
	for _, shards := range opts.Roots {
		total += len(shards)
	}
	if total == 0 {
		return SampleBatch{}, errors.New("sampler: no shards discovered")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	order := buildRoundRobinOrder(opts.Roots, rand.New(rand.NewSource(opts.Seed)))
	jobs := make(chan shardJob)
	cursors := make(chan shardCursor, opts.NumWorkers)

	go produceJobs(ctx, jobs, order)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, cursors, opts.PendingCap)
		}()
	}

	go func() {
		wg.Wait()
		close(cursors)
	}()

	batch := newBatch(0)
	err := aggregate(ctx, cursors, func(s Sample) {
		batch.Images = append(batch.Images, s.Pixels)
		batch.Labels = append(batch.Labels, s.Label)
	})
	if err != nil {
		return SampleBatch{}, err
	}
	return batch, nil
}

type shardJob struct {
	id   int64
	path string
}

type shardCursor struct {
	id      int64
	samples <-chan Sample
	errCh   <-chan error
}

func worker(ctx context.Context, jobs <-chan shardJob, cursors chan<- shardCursor, pendingCap int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			samples, errCh := StreamShard(ctx, job.path, pendingCap)
			cursor := shardCursor{id: job.id, samples: samples, errCh: errCh}
			select {
			case <-ctx.Done():
				return
			case cursors <- cursor:
			}
		}
	}
}

func aggregate(ctx context.Context, cursors <-chan shardCursor, emit func(Sample)) error {
	pending := make(map[int64]shardCursor)
	var nextID int64
	for {
		cursor, ok := pending[nextID]
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c, open := <-cursors:
				if !open {
					if len(pending) > 0 {
						return fmt.Errorf("sampler: shard job %d never arrived", nextID)
					}
					return ctx.Err()
				}
				pending[c.id] = c
			}
			continue
		}

		for sample := range cursor.samples {
			emit(sample)
		}
		if err := <-cursor.errCh; err != nil {
			return err
		}
		delete(pending, nextID)
		nextID++
	}
}

func produceJobs(ctx context.Context, jobs chan<- shardJob, order []orderEntry) {
	defer close(jobs)
	for id, entry := range order {
		select {
		case <-ctx.Done():
			return
		case jobs <- shardJob{id: int64(id), path: entry.path}:
		}
	}
}

type orderEntry struct {
	root string
	path string
}

func buildRoundRobinOrder(roots map[string][]string, rng *rand.Rand) []orderEntry {
	rootNames := make([]string, 0, len(roots))
	copied := make(map[string][]string, len(roots))
	for root, shards := range roots {
		if len(shards) == 0 {
			continue
		}
		rootNames = append(rootNames, root)
		copied[root] = append([]string(nil), shards...)
	}
	sort.Strings(rootNames)
	if rng != nil {
		for _, root := range rootNames {
			shards := copied[root]
			rng.Shuffle(len(shards), func(i, j int) {
				shards[i], shards[j] = shards[j], shards[i]
			})
		}
	}
	var order []orderEntry
	for {
		advanced := false
		for _, root := range rootNames {
			shards := copied[root]
			if len(shards) == 0 {
				continue
			}
			order = append(order, orderEntry{root: root, path: shards[0]})
			copied[root] = shards[1:]
			advanced = true
		}
		if !advanced {
			break
		}
	}
	return order
}
