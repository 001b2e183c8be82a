package session

import "sync"

// stream fans view models out to subscribers. Each subscriber channel holds
// only the newest frame; a slow reader skips intermediate ones.
type stream struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan ViewModel
	last   ViewModel
	closed bool
}

func newStream() *stream {
	return &stream{subs: make(map[uint64]chan ViewModel)}
}

func (s *stream) subscribe() (<-chan ViewModel, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ViewModel, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.nextID++
	id := s.nextID
	s.subs[id] = ch
	if s.last.Version > 0 {
		ch <- s.last
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// publish delivers vm unless a newer frame already went out.
func (s *stream) publish(vm ViewModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || vm.Version <= s.last.Version {
		return
	}
	s.last = vm
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- vm
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
