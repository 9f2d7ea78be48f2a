package client

import "sync"

// Sequencer orders asynchronous responses. Each request takes a number from
// Next; a response is accepted only if no newer one was accepted before it.
type Sequencer struct {
	mu       sync.Mutex
	issued   uint64
	accepted uint64
}

func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Accept reports whether the response to request seq may be shown, and
// records it as the newest shown if so.
func (s *Sequencer) Accept(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.accepted {
		return false
	}
	s.accepted = seq
	return true
}
