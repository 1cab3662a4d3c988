package updates

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Handler applies one update. It is called with a context that expires
// after the scheduler's update timeout.
type Handler func(ctx context.Context, index uuid.UUID, id uint64)

type queue struct {
	ids     []uint64
	running bool
}

// Scheduler runs the updates of each index in FIFO order, one at a time per
// index. Different indexes run in parallel, bounded by a global limit.
type Scheduler struct {
	handle  Handler
	timeout time.Duration
	sem     *semaphore.Weighted

	mu     sync.Mutex
	queues map[uuid.UUID]*queue
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewScheduler creates a scheduler running at most maxConcurrent updates at
// once (GOMAXPROCS when <= 0). A timeout <= 0 disables the deadline.
func NewScheduler(maxConcurrent int, timeout time.Duration, handle Handler) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		handle:  handle,
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		queues:  make(map[uuid.UUID]*queue),
		ctx:     ctx,
		cancel:  cancel,
		logger:  slog.Default().With("component", "update-scheduler"),
	}
}

// Schedule appends an update to the queue of index. It reports false once
// the scheduler is closed; the update then stays enqueued until the next
// start.
func (s *Scheduler) Schedule(index uuid.UUID, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	q, ok := s.queues[index]
	if !ok {
		q = &queue{}
		s.queues[index] = q
	}
	q.ids = append(q.ids, id)
	if !q.running {
		q.running = true
		s.wg.Add(1)
		go s.run(index, q)
	}
	return true
}

// Forget drops the queued, not yet started updates of index and returns
// their ids.
func (s *Scheduler) Forget(index uuid.UUID) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[index]
	if !ok {
		return nil
	}
	ids := q.ids
	q.ids = nil
	return ids
}

// Queued returns the number of updates waiting behind the running one.
func (s *Scheduler) Queued(index uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[index]; ok {
		return len(q.ids)
	}
	return 0
}

// Close stops dequeuing and waits for the running updates to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) next(index uuid.UUID, q *queue) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(q.ids) == 0 {
		q.running = false
		if len(q.ids) == 0 {
			delete(s.queues, index)
		}
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (s *Scheduler) run(index uuid.UUID, q *queue) {
	defer s.wg.Done()
	for {
		id, ok := s.next(index, q)
		if !ok {
			return
		}
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.logger.Debug("scheduler closed before update started", "uuid", index, "update_id", id)
			s.mu.Lock()
			q.running = false
			s.mu.Unlock()
			return
		}
		s.runOne(index, id)
		s.sem.Release(1)
	}
}

func (s *Scheduler) runOne(index uuid.UUID, id uint64) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("update handler panicked", "uuid", index, "update_id", id, "panic", r)
		}
	}()
	s.handle(ctx, index, id)
}
