package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/gamesync/pkg/eventbus"
)

type ProgressSnapshot struct {
	Loading         int      `json:"loading"`
	Update          int      `json:"update"`
	InvalidEntryIDs []string `json:"invalidEntryIds"`
}

// Progress holds the observable state of a run. The workflow is the only
// writer; the lock exists for observers polling Snapshot from other goroutines.
type Progress struct {
	mu      sync.RWMutex
	runID   uuid.UUID
	loading int
	update  int
	invalid []string

	bus eventbus.EventBus
}

// NewProgress returns a tracker that mirrors every change onto bus. bus may be nil.
func NewProgress(bus eventbus.EventBus) *Progress {
	return &Progress{bus: bus}
}

func (p *Progress) bind(runID uuid.UUID) {
	p.mu.Lock()
	p.runID = runID
	p.mu.Unlock()
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProgressSnapshot{
		Loading:         p.loading,
		Update:          p.update,
		InvalidEntryIDs: append([]string{}, p.invalid...),
	}
}

func (p *Progress) SetLoading(percent int) {
	p.set(PhaseLoading, percent)
}

func (p *Progress) SetUpdate(percent int) {
	p.set(PhaseUpdate, percent)
}

func (p *Progress) set(phase Phase, percent int) {
	percent = min(max(percent, 0), 100)

	p.mu.Lock()
	var changed bool
	switch phase {
	case PhaseLoading:
		changed = p.loading != percent
		p.loading = percent
	case PhaseUpdate:
		changed = p.update != percent
		p.update = percent
	}
	runID := p.runID
	p.mu.Unlock()

	if changed && p.bus != nil {
		p.bus.Publish(&ProgressChangedEvent{RunID: runID, Phase: phase, Percent: percent})
	}
}

func (p *Progress) SetInvalidEntryIDs(ids []string) {
	p.mu.Lock()
	p.invalid = append([]string{}, ids...)
	p.mu.Unlock()
}

func (p *Progress) notify(level NotificationLevel, message string) {
	if p == nil || p.bus == nil {
		return
	}
	p.mu.RLock()
	runID := p.runID
	p.mu.RUnlock()
	p.bus.Publish(&NotificationEvent{RunID: runID, Level: level, Message: message})
}

func (p *Progress) chunkCompleted(total int, result ChunkResult) {
	if p == nil || p.bus == nil {
		return
	}
	p.mu.RLock()
	runID := p.runID
	p.mu.RUnlock()
	p.bus.Publish(&ChunkCompletedEvent{RunID: runID, Total: total, Result: result})
}
