package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one newline-delimited unit read from the reader, terminator stripped.
type Frame struct {
	ID     uuid.UUID
	Data   string
	ReadAt time.Time
}

// NewFrame stamps data with a fresh ID and the current time.
func NewFrame(data string) Frame {
	return Frame{
		ID:     uuid.New(),
		Data:   data,
		ReadAt: time.Now(),
	}
}

// Queue is an unbounded FIFO of frames. Push never blocks; Pop waits up to a
// timeout. Growth is unbounded if the consumer stalls; callers can watch Len.
type Queue struct {
	mu     sync.Mutex
	frames []Frame
	ready  chan struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends f to the tail of the queue.
func (q *Queue) Push(f Frame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the head of the queue, waiting up to timeout for a
// frame to arrive. The bool is false if the timeout elapsed with nothing queued.
func (q *Queue) Pop(timeout time.Duration) (Frame, bool) {
	if f, ok := q.tryPop(); ok {
		return f, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if f, ok := q.tryPop(); ok {
				return f, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *Queue) tryPop() (Frame, bool) {
	q.mu.Lock()
	if len(q.frames) == 0 {
		q.mu.Unlock()
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames[0] = Frame{}
	q.frames = q.frames[1:]
	remaining := len(q.frames)
	q.mu.Unlock()

	// Pushes coalesce into one wakeup; pass it on while frames remain.
	if remaining > 0 {
		q.signal()
	}
	return f, true
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
