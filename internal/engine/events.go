package engine

import (
	"fmt"

	"github.com/talgya/cytophage/internal/agents"
)

// Event categories.
const (
	CategoryBirth      = "birth"
	CategoryDeath      = "death"
	CategoryLeader     = "leader"
	CategoryClan       = "clan"
	CategoryAggression = "aggression"
	CategoryWorld      = "world"
)

// maxEvents bounds the in-memory recent-event buffer.
const maxEvents = 1000

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64            `json:"tick" db:"tick"`
	Category    string            `json:"category" db:"category"`
	Description string            `json:"description" db:"description"`
	OrganismID  agents.OrganismID `json:"organism_id,omitempty" db:"organism_id"`
	GroupID     agents.GroupID    `json:"group_id,omitempty" db:"group_id"`
}

// emit records an event in the recent buffer and the pending queue that the
// saver drains.
func (s *Simulation) emit(category string, o *agents.Organism, format string, args ...any) {
	e := Event{
		Tick:        s.Stats.TickCount,
		Category:    category,
		Description: fmt.Sprintf(format, args...),
	}
	if o != nil {
		e.OrganismID = o.ID
		e.GroupID = o.GroupID
	}
	s.Events = append(s.Events, e)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	if len(s.pending) < maxEvents*10 {
		s.pending = append(s.pending, e)
	}
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	out := make([]Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}

// DrainEvents returns and clears the events emitted since the last drain.
func (s *Simulation) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}
