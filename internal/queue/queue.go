// Package queue is the analysis outbox: the ingest path enqueues a job per
// user and the worker pool drains it.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFull is returned when MaxPending jobs are already waiting.
	ErrFull = errors.New("queue: outbox full")
	// ErrInvalidReceipt is returned for unknown or expired receipt handles.
	ErrInvalidReceipt = errors.New("queue: invalid receipt handle")
)

// Config configures the outbox
type Config struct {
	MaxRetries        int           `json:"max_retries"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	MaxPending        int           `json:"max_pending"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		VisibilityTimeout: time.Minute,
		MaxPending:        100000,
	}
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = defaults.VisibilityTimeout
	}
	if c.MaxPending == 0 {
		c.MaxPending = defaults.MaxPending
	}
}

// Job asks for one analysis of one user.
type Job struct {
	ID            string
	UserID        string
	Reason        string
	Attempts      int
	EnqueuedAt    time.Time
	ReceiptHandle string
	visibleAt     time.Time
}

// Stats contains outbox statistics
type Stats struct {
	Pending     int `json:"pending"`
	InFlight    int `json:"in_flight"`
	DeadLetters int `json:"dead_letters"`
}

// Outbox is an in-process job queue with at most one pending job per
// user. A job handed out by Dequeue is invisible until it is acked, nacked
// or its visibility timeout passes.
type Outbox struct {
	cfg      Config
	pending  []*Job
	byUser   map[string]*Job // pending jobs only
	inFlight map[string]*Job // receiptHandle -> job
	dead     []*Job
	notify   chan struct{}
	now      func() time.Time
	mu       sync.Mutex
}

// NewOutbox creates an outbox
func NewOutbox(cfg Config) *Outbox {
	cfg.ApplyDefaults()
	return &Outbox{
		cfg:      cfg,
		byUser:   make(map[string]*Job),
		inFlight: make(map[string]*Job),
		notify:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Enqueue adds a job for userID unless one is already pending, in which
// case the pending job is kept and false is returned.
func (o *Outbox) Enqueue(ctx context.Context, userID, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	o.mu.Lock()
	if _, exists := o.byUser[userID]; exists {
		o.mu.Unlock()
		return false, nil
	}
	if len(o.pending) >= o.cfg.MaxPending {
		o.mu.Unlock()
		return false, ErrFull
	}

	now := o.now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		UserID:     userID,
		Reason:     reason,
		EnqueuedAt: now,
		visibleAt:  now,
	}
	o.pending = append(o.pending, job)
	o.byUser[userID] = job
	o.mu.Unlock()

	o.signal()
	return true, nil
}

// RequestAnalysis enqueues without blocking. It lets the outbox serve as
// the ingest path's analysis trigger.
func (o *Outbox) RequestAnalysis(ctx context.Context, userID, reason string) error {
	_, err := o.Enqueue(ctx, userID, reason)
	return err
}

// Dequeue hands out the oldest visible job, or nil when there is none.
func (o *Outbox) Dequeue(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.reclaimLocked(now)

	for i, job := range o.pending {
		if job.visibleAt.After(now) {
			continue
		}
		o.pending = append(o.pending[:i], o.pending[i+1:]...)
		delete(o.byUser, job.UserID)

		job.ReceiptHandle = uuid.New().String()
		job.visibleAt = now.Add(o.cfg.VisibilityTimeout)
		o.inFlight[job.ReceiptHandle] = job

		cp := *job
		return &cp, nil
	}
	return nil, nil
}

// reclaimLocked returns timed-out in-flight jobs to the queue, or to the
// dead letters once they used up their retries.
func (o *Outbox) reclaimLocked(now time.Time) {
	for handle, job := range o.inFlight {
		if job.visibleAt.After(now) {
			continue
		}
		delete(o.inFlight, handle)
		o.returnLocked(job, now)
	}
}

func (o *Outbox) returnLocked(job *Job, now time.Time) {
	job.ReceiptHandle = ""
	job.Attempts++
	job.visibleAt = now

	if job.Attempts >= o.cfg.MaxRetries {
		o.dead = append(o.dead, job)
		return
	}
	if _, exists := o.byUser[job.UserID]; exists {
		// a newer job for the user supersedes this one
		return
	}
	o.pending = append(o.pending, job)
	o.byUser[job.UserID] = job
}

// Ack removes a job from in-flight
func (o *Outbox) Ack(ctx context.Context, receiptHandle string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.inFlight[receiptHandle]; !exists {
		return ErrInvalidReceipt
	}
	delete(o.inFlight, receiptHandle)
	return nil
}

// Nack returns a job to the queue immediately
func (o *Outbox) Nack(ctx context.Context, receiptHandle string) error {
	o.mu.Lock()
	job, exists := o.inFlight[receiptHandle]
	if !exists {
		o.mu.Unlock()
		return ErrInvalidReceipt
	}
	delete(o.inFlight, receiptHandle)
	o.returnLocked(job, o.now())
	o.mu.Unlock()

	o.signal()
	return nil
}

// Ready is signalled after every enqueue or nack. Consumers wait on it
// between polls.
func (o *Outbox) Ready() <-chan struct{} {
	return o.notify
}

func (o *Outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Stats returns outbox statistics
func (o *Outbox) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Pending:     len(o.pending),
		InFlight:    len(o.inFlight),
		DeadLetters: len(o.dead),
	}
}

// DeadLetters returns copies of the jobs that exhausted their retries.
func (o *Outbox) DeadLetters() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Job, len(o.dead))
	for i, j := range o.dead {
		out[i] = *j
	}
	return out
}

// Purge drops every pending and in-flight job.
func (o *Outbox) Purge(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
	o.byUser = make(map[string]*Job)
	o.inFlight = make(map[string]*Job)
	return nil
}
