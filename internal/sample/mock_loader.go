package sample

// MockLoader implements Loader for testing purposes. It synthesizes
// cluster bytes in memory instead of reading a file, and records every
// call so tests can assert on load traffic.
type MockLoader struct {
	// Fill writes the bytes for one cluster. Nil leaves the buffer
	// untouched (the cluster still counts as loaded).
	Fill func(s *Sample, c *Cluster)

	// FailLoad, when set, makes LoadCluster return this error.
	FailLoad error

	// Queue holds clusters handed to EnqueueLoad, in order.
	Queue []*Cluster

	// Callbacks for observing traffic.
	OnLoad    func(s *Sample, c *Cluster)
	OnEnqueue func(s *Sample, c *Cluster)

	// Metrics for testing.
	LoadCount    int
	EnqueueCount int
	CancelCount  int
}

// LoadCluster implements Loader.
func (m *MockLoader) LoadCluster(s *Sample, c *Cluster) error {
	m.LoadCount++
	if m.OnLoad != nil {
		m.OnLoad(s, c)
	}
	if m.FailLoad != nil {
		return m.FailLoad
	}
	if m.Fill != nil {
		m.Fill(s, c)
	}
	return nil
}

// EnqueueLoad implements Loader.
func (m *MockLoader) EnqueueLoad(s *Sample, c *Cluster) {
	m.EnqueueCount++
	m.Queue = append(m.Queue, c)
	if m.OnEnqueue != nil {
		m.OnEnqueue(s, c)
	}
}

// CancelLoad implements Loader.
func (m *MockLoader) CancelLoad(c *Cluster) bool {
	for i, queued := range m.Queue {
		if queued == c {
			m.Queue = append(m.Queue[:i], m.Queue[i+1:]...)
			m.CancelCount++
			return true
		}
	}
	return false
}

// RunPending loads every queued cluster, simulating the background
// loader catching up.
func (m *MockLoader) RunPending() {
	for _, c := range m.Queue {
		if m.Fill != nil {
			m.Fill(c.Sample(), c)
		}
		c.Sample().MarkLoaded(c)
	}
	m.Queue = m.Queue[:0]
}
