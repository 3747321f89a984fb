package thread

import (
	"testing"

	"github.com/nhle/thread-reply/internal/model"
)

type recorder struct {
	events []string
}

func (r *recorder) listen(rec *model.ThreadRecord) {
	if rec == nil {
		r.events = append(r.events, "none")
		return
	}
	r.events = append(r.events, rec.MessageID)
}

func newTestSelection() (*Selection, *recorder) {
	s := NewSelection()
	r := &recorder{}
	s.OnChange(r.listen)
	s.Replace([]model.ThreadRecord{
		{MessageID: "<a>"},
		{MessageID: "<b>"},
		{MessageID: ""},
	})
	return s, r
}

func assertEvents(t *testing.T, r *recorder, want ...string) {
	t.Helper()
	if len(r.events) != len(want) {
		t.Fatalf("events: got %v, want %v", r.events, want)
	}
	for i := range want {
		if r.events[i] != want[i] {
			t.Fatalf("events: got %v, want %v", r.events, want)
		}
	}
}

func TestSelectionToggle(t *testing.T) {
	t.Parallel()

	s, r := newTestSelection()

	if _, ok := s.Selected(); ok {
		t.Fatal("new selection should be empty")
	}

	if err := s.Toggle(0); err != nil {
		t.Fatalf("Toggle(0): %v", err)
	}
	if rec, ok := s.Selected(); !ok || rec.MessageID != "<a>" {
		t.Fatalf("Selected: got %v, %v", rec, ok)
	}

	if err := s.Toggle(0); err != nil {
		t.Fatalf("Toggle(0) again: %v", err)
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("re-selecting the selected record should deselect it")
	}

	assertEvents(t, r, "<a>", "none")
}

func TestSelectionReplacesAtomically(t *testing.T) {
	t.Parallel()

	s, r := newTestSelection()
	var observed []int
	s.OnChange(func(*model.ThreadRecord) { observed = append(observed, s.Index()) })

	_ = s.Toggle(0)
	_ = s.ToggleID("<b>")

	if s.Index() != 1 {
		t.Fatalf("Index: got %d, want 1", s.Index())
	}
	assertEvents(t, r, "<a>", "<b>")
	if len(observed) != 2 || observed[0] != 0 || observed[1] != 1 {
		t.Errorf("listener observed indexes %v, want [0 1]", observed)
	}
}

func TestSelectionClearedByReplaceAndClear(t *testing.T) {
	t.Parallel()

	s, r := newTestSelection()

	_ = s.Toggle(1)
	s.Replace([]model.ThreadRecord{{MessageID: "<c>"}})
	if _, ok := s.Selected(); ok {
		t.Error("Replace should clear the selection")
	}

	s.Replace(nil)
	s.Clear()
	s.Replace([]model.ThreadRecord{{MessageID: "<c>"}})

	_ = s.Toggle(0)
	_ = s.Toggle(0)
	_ = s.Toggle(0)
	s.Clear()

	assertEvents(t, r, "<b>", "none", "<c>", "none", "<c>", "none")
}

func TestSelectionRejectsInvalidTargets(t *testing.T) {
	t.Parallel()

	s, r := newTestSelection()

	for _, err := range []error{
		s.Toggle(-1),
		s.Toggle(3),
		s.Toggle(2),
		s.ToggleID("<missing>"),
	} {
		if !IsValidationError(err) {
			t.Errorf("got %v, want ValidationError", err)
		}
	}
	if len(r.events) != 0 {
		t.Errorf("rejected selections emitted events: %v", r.events)
	}
}
