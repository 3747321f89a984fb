package thread

import (
	"fmt"

	"github.com/nhle/thread-reply/internal/model"
)

// Selection holds at most one selected record of the current result set.
// Selecting the selected record again deselects it. Every state change
// is reported to the registered listeners with the new selection, or nil
// when nothing is selected.
//
// A Selection is owned by a single goroutine.
type Selection struct {
	records   []model.ThreadRecord
	selected  int
	listeners []func(*model.ThreadRecord)
}

// NewSelection returns an empty selection over an empty result set.
func NewSelection() *Selection {
	return &Selection{selected: -1}
}

// OnChange registers fn to be called after every selection change.
func (s *Selection) OnChange(fn func(*model.ThreadRecord)) {
	s.listeners = append(s.listeners, fn)
}

// Records returns the current result set.
func (s *Selection) Records() []model.ThreadRecord {
	return s.records
}

// Replace installs a new result set and drops any selection into the
// previous one.
func (s *Selection) Replace(records []model.ThreadRecord) {
	s.records = records
	if s.selected >= 0 {
		s.set(-1)
	}
}

// Toggle selects the record at index i, or deselects it when it is
// already selected.
func (s *Selection) Toggle(i int) error {
	if i < 0 || i >= len(s.records) {
		return &ValidationError{
			Field:  "selection",
			Reason: fmt.Sprintf("index %d outside %d results", i, len(s.records)),
		}
	}
	if s.records[i].MessageID == "" {
		return &ValidationError{
			Field:  "selection",
			Reason: "record has no Message-ID and cannot be replied to",
		}
	}

	if s.selected == i {
		s.set(-1)
		return nil
	}
	s.set(i)
	return nil
}

// ToggleID toggles the record with the given Message-ID.
func (s *Selection) ToggleID(messageID string) error {
	for i := range s.records {
		if s.records[i].MessageID == messageID {
			return s.Toggle(i)
		}
	}
	return &ValidationError{
		Field:  "selection",
		Reason: fmt.Sprintf("%s is not in the current results", messageID),
	}
}

// Clear deselects the current record, if any.
func (s *Selection) Clear() {
	if s.selected >= 0 {
		s.set(-1)
	}
}

// Selected returns the selected record.
func (s *Selection) Selected() (*model.ThreadRecord, bool) {
	if s.selected < 0 {
		return nil, false
	}
	return &s.records[s.selected], true
}

// Index returns the index of the selected record or -1.
func (s *Selection) Index() int {
	return s.selected
}

func (s *Selection) set(i int) {
	s.selected = i

	var rec *model.ThreadRecord
	if i >= 0 {
		rec = &s.records[i]
	}
	for _, fn := range s.listeners {
		fn(rec)
	}
}
