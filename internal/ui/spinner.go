package ui

import (
	"fmt"
	"sync"
	"time"
)

// Spinner represents a simple spinner for indeterminate progress
type Spinner struct {
	mu       sync.Mutex
	chars    []rune
	current  int
	active   bool
	message  string
	lastSpin time.Time
	interval time.Duration
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		chars:    []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'},
		message:  message,
		interval: 100 * time.Millisecond,
	}
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.lastSpin = time.Now()
}

// Stop stops the spinner
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// String returns the current frame, advancing at most once per interval.
func (s *Spinner) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ""
	}

	now := time.Now()
	if now.Sub(s.lastSpin) >= s.interval {
		s.current = (s.current + 1) % len(s.chars)
		s.lastSpin = now
	}

	return fmt.Sprintf("%c %s", s.chars[s.current], s.message)
}

// IsActive returns whether the spinner is active
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
