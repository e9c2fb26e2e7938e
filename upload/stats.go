package upload

import (
	"sync"
	"time"
)

// Stats tracks part upload performance for logging and progress reporting.
type Stats struct {
	sum           time.Duration
	finishedParts int
	uploadedBytes int64
	mu            sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records one acknowledged part.
func (s *Stats) Update(took time.Duration, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += took
	s.finishedParts++
	s.uploadedBytes += bytes
}

// Average returns the average upload duration of acknowledged parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedParts == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedParts)
}

// FinishedParts returns the number of acknowledged parts.
func (s *Stats) FinishedParts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedParts
}

// UploadedBytes returns the total acknowledged byte count.
func (s *Stats) UploadedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadedBytes
}
