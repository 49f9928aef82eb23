package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

const memoryQueueBuffer = 256

// MemoryQueue runs build jobs on per-queue worker pools inside the process.
// Jobs with a delay wait on a timer before they become visible to workers.
type MemoryQueue struct {
	workerCounts map[string]int

	mu       sync.Mutex
	handlers map[string]ports.JobHandler
	channels map[string]chan types.BuildJob
	timers   map[string]*time.Timer
	started  bool
	closed   bool
	done     chan struct{}
	baseCtx  context.Context

	running   atomic.Int64
	active    atomic.Int64
	releasing atomic.Int64
	workers   sync.WaitGroup
}

const drainPollInterval = 50 * time.Millisecond

func NewMemoryQueue(workerCounts map[string]int) *MemoryQueue {
	counts := map[string]int{}
	for queue, count := range workerCounts {
		counts[queue] = count
	}
	return &MemoryQueue{
		workerCounts: counts,
		handlers:     map[string]ports.JobHandler{},
		channels:     map[string]chan types.BuildJob{},
		timers:       map[string]*time.Timer{},
		done:         make(chan struct{}),
		baseCtx:      context.Background(),
	}
}

func (q *MemoryQueue) OnJob(queue string, handler ports.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[queue] = handler
	if _, ok := q.channels[queue]; !ok {
		q.channels[queue] = make(chan types.BuildJob, memoryQueueBuffer)
	}
}

// Start launches the workers of every queue that has a handler. Handlers
// run on a context that is detached from cancellation so builds are never
// interrupted halfway.
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("queue is closed")
	}
	if q.started {
		return nil
	}
	q.started = true
	q.baseCtx = context.WithoutCancel(ctx)

	queues := make([]string, 0, len(q.handlers))
	for queue := range q.handlers {
		queues = append(queues, queue)
	}
	sort.Strings(queues)
	for _, queue := range queues {
		count := q.workerCounts[queue]
		if count <= 0 {
			count = types.DefaultBuildWorkers
		}
		for i := 0; i < count; i++ {
			q.workers.Add(1)
			q.running.Add(1)
			go q.work(queue, i, q.channels[queue], q.handlers[queue])
		}
		log.Ctx(ctx).Info().Str("queue", queue).Int("workers", count).Msg("queue workers started")
	}
	return nil
}

func (q *MemoryQueue) work(queue string, index int, jobs <-chan types.BuildJob, handler ports.JobHandler) {
	defer q.workers.Done()
	defer q.running.Add(-1)
	logger := log.Ctx(q.baseCtx).With().Str("queue", queue).Int("worker", index).Logger()
	for {
		select {
		case <-q.done:
			return
		case job := <-jobs:
			q.active.Add(1)
			ctx := logger.With().Str("job_id", job.ID).Int64("repo_id", job.RepoID).Logger().WithContext(q.baseCtx)
			q.run(ctx, job, handler)
		}
	}
}

func (q *MemoryQueue) run(ctx context.Context, job types.BuildJob, handler ports.JobHandler) {
	defer q.active.Add(-1)
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Ctx(ctx).Error().Interface("panic", recovered).Msg("build job panicked")
		}
	}()
	log.Ctx(ctx).Debug().Msg("build job started")
	if err := handler(ctx, job); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("build job failed")
		return
	}
	log.Ctx(ctx).Debug().Msg("build job finished")
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job types.BuildJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("queue is closed")
	}
	jobs, ok := q.channels[job.Queue]
	if !ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown queue %q", job.Queue))
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Delay <= 0 {
		return q.pushLocked(jobs, job)
	}
	q.timers[job.ID] = time.AfterFunc(job.Delay, func() { q.release(jobs, job) })
	log.Ctx(ctx).Debug().Str("queue", job.Queue).Str("job_id", job.ID).Dur("delay", job.Delay).Msg("build job scheduled")
	return nil
}

// release hands a delayed job to the workers. It waits for buffer space
// until the queue is closed, so a burst of released jobs is never dropped.
func (q *MemoryQueue) release(jobs chan types.BuildJob, job types.BuildJob) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	delete(q.timers, job.ID)
	q.releasing.Add(1)
	q.mu.Unlock()
	defer q.releasing.Add(-1)

	select {
	case jobs <- job:
	case <-q.done:
		log.Ctx(q.baseCtx).Warn().Str("queue", job.Queue).Str("job_id", job.ID).Msg("queue closed before delayed job was released")
	}
}

func (q *MemoryQueue) pushLocked(jobs chan types.BuildJob, job types.BuildJob) error {
	select {
	case jobs <- job:
		return nil
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("queue %q is full", job.Queue))
	}
}

// Pending counts jobs that are waiting on their delay, on buffer space or
// on a worker.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := len(q.timers) + int(q.releasing.Load())
	for _, jobs := range q.channels {
		count += len(jobs)
	}
	return count
}

// Drain blocks until no job is waiting or running, or ctx is done. The
// queue has to look idle on two consecutive ticks so a job caught between
// its channel and its worker is not missed.
func (q *MemoryQueue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	idle := 0
	for {
		if q.Pending() == 0 && q.active.Load() == 0 {
			idle++
			if idle >= 2 {
				return nil
			}
		} else {
			idle = 0
		}
		select {
		case <-ctx.Done():
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("queue still has %d pending jobs", q.Pending())).
				WithCause(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) Workers() int {
	return int(q.running.Load())
}

// Close drops jobs that have not started and waits for running ones.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	close(q.done)
	q.mu.Unlock()
	q.workers.Wait()
	return nil
}

var _ ports.QueuePort = (*MemoryQueue)(nil)
