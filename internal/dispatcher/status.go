package dispatcher

import (
	"context"

	"strata/internal/jobs"
)

// Snapshot summarizes the dispatcher for status surfaces.
type Snapshot struct {
	Running   bool               `json:"running"`
	Inflight  int                `json:"inflight"`
	SlotsUsed int                `json:"slots_used"`
	Queue     jobs.HealthSummary `json:"queue"`
	LastError string             `json:"last_error,omitempty"`
}

// Status assembles a point-in-time view of the dispatcher and queue.
func (m *Manager) Status(ctx context.Context) (Snapshot, error) {
	health, err := m.store.Health(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := Snapshot{
		Running:   m.running,
		Inflight:  len(m.inflight),
		SlotsUsed: 0,
		Queue:     health,
	}
	for _, entry := range m.inflight {
		snapshot.SlotsUsed += entry.cost
	}
	if m.lastErr != nil {
		snapshot.LastError = m.lastErr.Error()
	}
	return snapshot, nil
}
