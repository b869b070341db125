package workflow

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool   `json:"running"`
	ActiveJobs    int    `json:"active_jobs"`
	MaxConcurrent int64  `json:"max_concurrent_jobs"`
	LastError     string `json:"last_error,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return StatusSummary{
		Running:       m.running,
		ActiveJobs:    m.active,
		MaxConcurrent: m.maxConcurrent,
		LastError:     m.lastErr,
	}
}

func (m *Manager) setLastError(message string) {
	if message == "" {
		return
	}
	m.mu.Lock()
	m.lastErr = message
	m.mu.Unlock()
}
