// Package stream runs the acquisition loop: it follows the requested source,
// keeps one capture connection open and pushes every frame through
// transform, encode and broadcast.
package stream

import "sync"

// State is the only thing shared between the control plane and the loop.
// An empty address means "no source".
type State struct {
	mu      sync.Mutex
	address string
	running bool
}

// NewState creates a running state pointed at address
func NewState(address string) *State {
	return &State{address: address, running: true}
}

// SetSource replaces the requested address; the loop picks it up on its next
// iteration
func (s *State) SetSource(address string) {
	s.mu.Lock()
	s.address = address
	s.mu.Unlock()
}

// Stop asks the loop to exit at its next iteration boundary
func (s *State) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Read returns a consistent snapshot
func (s *State) Read() (address string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.running
}

// Address returns the requested address
func (s *State) Address() string {
	address, _ := s.Read()
	return address
}
