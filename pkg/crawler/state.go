package crawler

import (
	"time"

	"booruscraper/pkg/checkpoint"
)

// DefaultEmptyPageLimit is the number of consecutive unproductive pages
// that triggers a jump-back.
const DefaultEmptyPageLimit = 3

// State is the in-memory traversal state of one tag. Only the Engine
// mutates it.
type State struct {
	Tag                   string
	PageNumber            int
	LastProductivePage    int
	ConsecutiveEmptyPages int
	EmptyPageLimit        int
	EndOfListing          bool

	collected []string
	index     map[string]struct{}
	createdAt time.Time
}

// NewState returns a fresh state positioned on page 1
func NewState(tag string, emptyPageLimit int) *State {
	if emptyPageLimit <= 0 {
		emptyPageLimit = DefaultEmptyPageLimit
	}
	return &State{
		Tag:            tag,
		PageNumber:     1,
		EmptyPageLimit: emptyPageLimit,
		index:          make(map[string]struct{}),
	}
}

// StateFromRecord seeds a state from a checkpoint. The scan restarts at
// page 1; the restored identifiers turn already-seen posts into duplicates.
func StateFromRecord(tag string, emptyPageLimit int, rec *checkpoint.Record) *State {
	s := NewState(tag, emptyPageLimit)
	if rec == nil {
		return s
	}
	for _, id := range rec.Collected {
		s.add(id)
	}
	if rec.LastProductivePage > 0 {
		s.LastProductivePage = rec.LastProductivePage
	}
	s.createdAt = rec.CreatedAt
	return s
}

// Has reports whether id was already accepted
func (s *State) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len is the number of accepted posts
func (s *State) Len() int {
	return len(s.collected)
}

// Collected returns a copy of the accepted identifiers in acceptance order
func (s *State) Collected() []string {
	out := make([]string, len(s.collected))
	copy(out, s.collected)
	return out
}

// NextSequence is the artifact number the next accepted post receives
func (s *State) NextSequence() int {
	return len(s.collected) + 1
}

// Record projects the state onto a checkpoint record
func (s *State) Record() *checkpoint.Record {
	return &checkpoint.Record{
		Tag:                s.Tag,
		Collected:          s.Collected(),
		LastProductivePage: s.LastProductivePage,
		CreatedAt:          s.createdAt,
	}
}

func (s *State) add(id string) bool {
	if s.Has(id) {
		return false
	}
	s.collected = append(s.collected, id)
	s.index[id] = struct{}{}
	return true
}

// finishPage folds one page's acceptance count into the counters and
// reports whether LastProductivePage moved.
func (s *State) finishPage(accepted int) (raised bool) {
	if accepted == 0 {
		s.ConsecutiveEmptyPages++
		return false
	}
	s.ConsecutiveEmptyPages = 0
	if s.PageNumber > s.LastProductivePage {
		s.LastProductivePage = s.PageNumber
		return true
	}
	return false
}

// jumpBack rewinds to one page before the last productive page when the
// empty-page limit is reached. The regular advance then lands on it.
func (s *State) jumpBack() bool {
	if s.ConsecutiveEmptyPages != s.EmptyPageLimit {
		return false
	}
	target := s.LastProductivePage
	if target < 1 {
		target = 1
	}
	s.PageNumber = target - 1
	s.ConsecutiveEmptyPages = 0
	return true
}

func (s *State) advance() {
	s.PageNumber++
}
