package dialogue

import (
	"context"
	"strings"
	"sync"
)

// Queue feeds inputs from several producers (typed text, transcripts) to a
// session strictly in the order Push was called. The user message is
// recorded by Push itself, so it shows up while earlier replies are still
// pending.
type Queue struct {
	s *Session

	mu      sync.Mutex
	pending []string
	wake    chan struct{}
}

func (s *Session) NewQueue() *Queue {
	return &Queue{s: s, wake: make(chan struct{}, 1)}
}

// Push records input and schedules its reply. Blank input is ignored.
func (q *Queue) Push(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	q.mu.Lock()
	q.s.append(newMessage(RoleUser, input))
	q.pending = append(q.pending, input)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports how many inputs are still waiting for a reply.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run answers pushed inputs one at a time until ctx ends. Inputs still
// pending at that point are dropped.
func (q *Queue) Run(ctx context.Context) {
	for {
		input, ok := q.next(ctx)
		if !ok {
			return
		}
		if err := q.s.acquireTurn(ctx); err != nil {
			return
		}
		q.s.respond(ctx, input)
		q.s.releaseTurn()

		q.mu.Lock()
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

func (q *Queue) next(ctx context.Context) (string, bool) {
	for {
		if ctx.Err() != nil {
			return "", false
		}
		q.mu.Lock()
		if len(q.pending) > 0 {
			input := q.pending[0]
			q.mu.Unlock()
			return input, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", false
		}
	}
}
