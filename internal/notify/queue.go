package notify

import "sync"

type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Queue buffers the most recent notices until the UI drains them.
type Queue struct {
	mu      sync.Mutex
	limit   int
	notices []Notice
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = 20
	}
	return &Queue{limit: limit}
}

func (q *Queue) Notify(kind Kind, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.notices = append(q.notices, Notice{Kind: kind, Message: message})
	if over := len(q.notices) - q.limit; over > 0 {
		q.notices = append([]Notice(nil), q.notices[over:]...)
	}
}

// Drain returns the buffered notices oldest first and empties the queue.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.notices
	q.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
