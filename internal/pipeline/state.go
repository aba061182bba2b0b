package pipeline

import (
	"sort"
	"sync"
	"time"
)

// ScanState is the per-scan session: visited files, learned
// configuration-like import names and the file/time budgets. A new one is
// created for every scan so runs never share state.
type ScanState struct {
	mu          sync.Mutex
	visited     map[string]bool
	configNames map[string]bool

	maxFiles  int
	reserved  int
	deadline  time.Time
	now       func() time.Time
	exhausted bool
}

// NewScanState creates a session allowing maxFiles files (<= 0 means no
// limit) until deadline (zero means none).
func NewScanState(maxFiles int, deadline time.Time, now func() time.Time) *ScanState {
	if now == nil {
		now = time.Now
	}
	return &ScanState{
		visited:     make(map[string]bool),
		configNames: make(map[string]bool),
		maxFiles:    maxFiles,
		deadline:    deadline,
		now:         now,
	}
}

// Visit marks path as visited and reports whether it was new.
func (s *ScanState) Visit(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[path] {
		return false
	}
	s.visited[path] = true
	return true
}

func (s *ScanState) Visited(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited[path]
}

func (s *ScanState) KnowsConfigName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configNames[name]
}

func (s *ScanState) LearnConfigName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configNames[name] = true
}

// Reserve claims budget for one more file. Once the file count or the
// deadline is exhausted it keeps returning false.
func (s *ScanState) Reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted {
		return false
	}
	if s.maxFiles > 0 && s.reserved >= s.maxFiles {
		s.exhausted = true
		return false
	}
	if !s.deadline.IsZero() && !s.now().Before(s.deadline) {
		s.exhausted = true
		return false
	}
	s.reserved++
	return true
}

// Expired reports whether the deadline has passed, without consuming
// budget.
func (s *ScanState) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.deadline.IsZero() && !s.now().Before(s.deadline)
}

// Exhausted reports whether a budget stopped the scan early.
func (s *ScanState) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

func (s *ScanState) Reserved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved
}

// ConfigNames returns the learned names, sorted.
func (s *ScanState) ConfigNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.configNames))
	for n := range s.configNames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
