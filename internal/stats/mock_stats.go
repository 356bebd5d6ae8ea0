package stats

import "sync"

// MockStatsUpdater records counter deltas for assertions in tests.
type MockStatsUpdater struct {
	mu     sync.Mutex
	Counts map[string]int
}

func (m *MockStatsUpdater) Incr(name string) { m.add(name, 1) }
func (m *MockStatsUpdater) Decr(name string) { m.add(name, -1) }

func (m *MockStatsUpdater) add(name string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[name] += delta
}

func (m *MockStatsUpdater) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[name]
}

func (m *MockStatsUpdater) RegisterMetric(name string) {}
func (m *MockStatsUpdater) Run()                       {}
