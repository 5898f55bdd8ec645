package progress

import (
	"context"
	"sync"
)

// subscriber buffers snapshots for one stream consumer. The queue is
// unbounded so a slow reader never blocks the tracker; the pump goroutine
// drains it into out.
type subscriber struct {
	mu     sync.Mutex
	queue  []Session
	done   bool
	notify chan struct{}
	out    chan Session
}

func newSubscriber() *subscriber {
	return &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Session),
	}
}

func (s *subscriber) push(snap Session) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	if snap.Status.Terminal() {
		s.done = true
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			done := s.done
			s.mu.Unlock()
			if done {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return
			}
		}
		snap := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- snap:
		case <-ctx.Done():
			return
		}
	}
}
