// Package jobs runs named background jobs on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a background job.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// ErrQueueFull is returned when the queue cannot accept more work.
var ErrQueueFull = errors.New("job queue is full")

// ErrShutdown is returned when work is submitted after shutdown began.
var ErrShutdown = errors.New("job runner is shut down")

// Job is a unit of background work. The context is cancelled when the
// runner shuts down.
type Job func(ctx context.Context) error

// Info is a snapshot of one job's state.
type Info struct {
	ID         string
	Name       string
	Status     Status
	Error      string
	EnqueuedAt time.Time
	FinishedAt time.Time
}

// Service is the interface for background job execution.
type Service interface {
	Enqueue(name string, job Job) (string, error)
	Status(id string) (Info, bool)
	Shutdown(ctx context.Context) error
}

type queued struct {
	id  string
	job Job
}

type service struct {
	logger *zap.Logger
	queue  chan queued
	wg     sync.WaitGroup

	mu     sync.Mutex
	infos  map[string]*Info
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewService starts a runner with the given worker and queue sizes.
func NewService(workers, queueSize int, logger *zap.Logger) Service {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &service{
		logger:  logger,
		queue:   make(chan queued, queueSize),
		infos:   map[string]*Info{},
		baseCtx: ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Enqueue submits a job and returns its id. Fails fast when the queue
// is full instead of blocking the caller.
func (s *service) Enqueue(name string, job Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShutdown
	}
	id := uuid.NewString()

	// The send stays under the lock so Shutdown cannot close the queue
	// between the closed check and the send.
	select {
	case s.queue <- queued{id: id, job: job}:
		s.infos[id] = &Info{
			ID:         id,
			Name:       name,
			Status:     StatusQueued,
			EnqueuedAt: time.Now().UTC(),
		}
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

// Status returns a job snapshot by id.
func (s *service) Status(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Shutdown stops accepting work, cancels the job context and waits for
// in-flight jobs up to the context's deadline.
func (s *service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *service) worker() {
	defer s.wg.Done()
	for item := range s.queue {
		s.run(item)
	}
}

func (s *service) run(item queued) {
	s.setStatus(item.id, StatusRunning, "")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return item.job(s.baseCtx)
	}()

	if err != nil {
		s.logger.Error("background job failed",
			zap.String("job_id", item.id), zap.Error(err))
		s.setStatus(item.id, StatusFailed, err.Error())
		return
	}
	s.setStatus(item.id, StatusDone, "")
}

func (s *service) setStatus(id string, status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[id]
	if !ok {
		return
	}
	info.Status = status
	info.Error = errMsg
	if status == StatusDone || status == StatusFailed {
		info.FinishedAt = time.Now().UTC()
	}
}
