package service

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"golang.org/x/sync/errgroup"

	"ride-dispatch/internal/general/logger"
)

const (
	defaultEffectWorkers = 4
	defaultEffectQueue   = 256
	defaultEffectTimeout = 10 * time.Second
)

var errEffectQueueFull = errors.New("ride effect queue is full")

type effectJob struct {
	ctx    context.Context
	rideID string
	run    func(ctx context.Context)
}

// EffectQueue runs post-commit ride side effects (audit rows, broker publishes,
// notifications) on background workers. Jobs for one ride always land on the
// same worker, so they run in the order they were submitted.
type EffectQueue struct {
	shards  []chan effectJob
	timeout time.Duration
	log     *logger.Logger
}

// NewEffectQueue creates a queue with workers shards of size slots each.
// Non-positive values use defaults.
func NewEffectQueue(workers, size int, timeout time.Duration, log *logger.Logger) *EffectQueue {
	if workers <= 0 {
		workers = defaultEffectWorkers
	}
	if size <= 0 {
		size = defaultEffectQueue
	}
	if timeout <= 0 {
		timeout = defaultEffectTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	q := &EffectQueue{shards: make([]chan effectJob, workers), timeout: timeout, log: log}
	for i := range q.shards {
		q.shards[i] = make(chan effectJob, size)
	}
	return q
}

// Run processes jobs until ctx is cancelled, then drains what is already queued.
func (q *EffectQueue) Run(ctx context.Context) error {
	q.log.Info(ctx, "ride_effects_started", "Ride effect workers started", map[string]any{"workers": len(q.shards)})

	var g errgroup.Group
	for _, shard := range q.shards {
		g.Go(func() error {
			for {
				select {
				case job := <-shard:
					q.exec(job)
				case <-ctx.Done():
					for {
						select {
						case job := <-shard:
							q.exec(job)
						default:
							return nil
						}
					}
				}
			}
		})
	}
	err := g.Wait()
	q.log.Info(context.WithoutCancel(ctx), "ride_effects_stopped", "Ride effect workers drained", nil)
	return err
}

// submit never blocks. A full shard hands the job to its own goroutine, which
// gives up ordering for that job but not the job itself.
func (q *EffectQueue) submit(ctx context.Context, rideID string, run func(ctx context.Context)) {
	job := effectJob{ctx: context.WithoutCancel(ctx), rideID: rideID, run: run}
	select {
	case q.shard(rideID) <- job:
	default:
		q.log.Error(ctx, "ride_effects_overflow", "Ride effect queue full, running detached", errEffectQueueFull, nil)
		go q.exec(job)
	}
}

func (q *EffectQueue) shard(rideID string) chan effectJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rideID))
	return q.shards[h.Sum32()%uint32(len(q.shards))]
}

func (q *EffectQueue) exec(job effectJob) {
	ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
	defer cancel()
	job.run(ctx)
}
