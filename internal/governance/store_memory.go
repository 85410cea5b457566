package governance

import (
	"context"
	"sync"

	"deposit-governance/internal/models"
)

// MemoryStore keeps engine state in process memory
type MemoryStore struct {
	proposals   map[uint64]*models.Proposal
	vetoHolders map[string]bool
	events      []Event
	mutex       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals:   make(map[uint64]*models.Proposal),
		vetoHolders: make(map[string]bool),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot := &Snapshot{}
	for _, p := range s.proposals {
		snapshot.Proposals = append(snapshot.Proposals, p.Clone())
	}
	for holder, enabled := range s.vetoHolders {
		if enabled {
			snapshot.VetoHolders = append(snapshot.VetoHolders, holder)
		}
	}
	return snapshot, nil
}

func (s *MemoryStore) Commit(ctx context.Context, change *Change) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if change.Proposal != nil {
		s.proposals[change.Proposal.ID] = change.Proposal.Clone()
	}
	if change.VetoHolder != nil {
		s.vetoHolders[change.VetoHolder.Address] = change.VetoHolder.Enabled
	}
	s.events = append(s.events, change.Events...)
	return nil
}

// Events returns every committed event in commit order
func (s *MemoryStore) Events() []Event {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}
