package crawler

import (
	"testing"
	"time"

	"booruscraper/pkg/checkpoint"

	"github.com/stretchr/testify/assert"
)

func TestStateFromRecord(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := &checkpoint.Record{
		Tag:                "touhou",
		Collected:          []string{"p1", "p2", "p1", "p3"},
		LastProductivePage: 12,
		CreatedAt:          created,
	}

	s := StateFromRecord("touhou", 0, rec)

	assert.Equal(t, 1, s.PageNumber)
	assert.Equal(t, DefaultEmptyPageLimit, s.EmptyPageLimit)
	assert.Equal(t, 12, s.LastProductivePage)
	assert.Equal(t, []string{"p1", "p2", "p3"}, s.Collected())
	assert.Equal(t, 4, s.NextSequence())
	assert.True(t, s.Has("p2"))
	assert.Equal(t, created, s.Record().CreatedAt)
}

func TestStateRecordIsACopy(t *testing.T) {
	s := NewState("touhou", 3)
	s.add("p1")

	rec := s.Record()
	rec.Collected[0] = "mutated"
	s.Collected()[0] = "mutated"

	assert.Equal(t, []string{"p1"}, s.Collected())
	assert.False(t, s.add("p1"))
}

func TestStateFinishPage(t *testing.T) {
	s := NewState("touhou", 3)
	s.PageNumber = 4

	assert.True(t, s.finishPage(2))
	assert.Equal(t, 4, s.LastProductivePage)

	s.PageNumber = 2
	assert.False(t, s.finishPage(1), "an earlier page never lowers the mark")
	assert.Equal(t, 4, s.LastProductivePage)

	assert.False(t, s.finishPage(0))
	assert.Equal(t, 1, s.ConsecutiveEmptyPages)
	s.finishPage(5)
	assert.Zero(t, s.ConsecutiveEmptyPages)
}

func TestStateJumpBack(t *testing.T) {
	tests := []struct {
		name     string
		lastPage int
		wantNext int
	}{
		{"to last productive page", 7, 7},
		{"never productive", 0, 1},
		{"first page", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState("touhou", 2)
			s.LastProductivePage = tt.lastPage
			s.PageNumber = 10

			s.finishPage(0)
			assert.False(t, s.jumpBack())
			s.finishPage(0)
			assert.True(t, s.jumpBack())
			assert.Zero(t, s.ConsecutiveEmptyPages)

			s.advance()
			assert.Equal(t, tt.wantNext, s.PageNumber)
		})
	}
}
