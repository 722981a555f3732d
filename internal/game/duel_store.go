package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DuelStore keeps live duels in memory. It is the single lookup point for
// everything that needs a duel by id or by seated participant.
type DuelStore struct {
	mu    sync.Mutex
	duels map[uuid.UUID]*Duel
}

func NewDuelStore() *DuelStore {
	return &DuelStore{
		duels: make(map[uuid.UUID]*Duel),
	}
}

func (s *DuelStore) AddDuel(d *Duel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duels[d.ID] = d
}

func (s *DuelStore) GetDuel(id uuid.UUID) (*Duel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[id]
	return d, ok
}

func (s *DuelStore) DeleteDuel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.duels, id)
}

// FindByParticipant returns the live (waiting or in-progress) duel seating
// the given participant, if any. Terminal duels awaiting cleanup don't
// count: the participant is free to search again.
func (s *DuelStore) FindByParticipant(participantID uuid.UUID) (*Duel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.duels {
		d.Mu.Lock()
		live := !d.State.Terminal() && d.SeatOf(participantID) >= 0
		d.Mu.Unlock()
		if live {
			return d, true
		}
	}
	return nil, false
}

// Range calls fn for each stored duel until fn returns false.
func (s *DuelStore) Range(fn func(d *Duel) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.duels {
		if !fn(d) {
			return
		}
	}
}

// ReapTerminal removes terminal duels older than the given age. Terminal
// duels stay queryable for a while after their outcome is processed; this
// sweeps them out once nobody should still be reading them.
func (s *DuelStore) ReapTerminal(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, d := range s.duels {
		d.Mu.Lock()
		stale := d.State.Terminal() && d.CreatedAt.Before(cutoff)
		d.Mu.Unlock()
		if stale {
			delete(s.duels, id)
			n++
		}
	}
	return n
}
