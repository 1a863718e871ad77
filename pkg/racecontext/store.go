package racecontext

import (
	"sync/atomic"
	"time"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

type entry struct {
	rc      model.RaceContext
	updated time.Time
}

// Store holds the most recently received race context of the process.
// Readers may observe a slightly older value than the latest write.
type Store struct {
	latest atomic.Pointer[entry]
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Update replaces the current race context. The value is copied.
func (s *Store) Update(rc *model.RaceContext) {
	cp := *rc
	cp.Competitors = append([]model.Competitor(nil), rc.Competitors...)
	s.latest.Store(&entry{rc: cp, updated: s.now()})
}

// Latest returns the current race context and false if none was received yet.
func (s *Store) Latest() (model.RaceContext, bool) {
	e := s.latest.Load()
	if e == nil {
		return model.RaceContext{}, false
	}
	ret := e.rc
	ret.Competitors = append([]model.Competitor(nil), e.rc.Competitors...)
	return ret, true
}

// UpdatedAt returns the time of the last update, zero if none.
func (s *Store) UpdatedAt() time.Time {
	if e := s.latest.Load(); e != nil {
		return e.updated
	}
	return time.Time{}
}

func (s *Store) Clear() {
	s.latest.Store(nil)
}
