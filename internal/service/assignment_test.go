package service

import "testing"

func TestAssignMovesStaffToNewTicket(t *testing.T) {
	index := NewActiveIndex()
	tr := NewAssignmentTracker(index)

	tr.Assign(1, "TCK-000001", 42)
	tr.Assign(1, "TCK-000002", 43)

	if _, ok := tr.WhoIsHandling("TCK-000001"); ok {
		t.Fatalf("staff 1 moved on; TCK-000001 should be unhandled")
	}
	if staff, ok := tr.WhoIsHandling("TCK-000002"); !ok || staff != 1 {
		t.Fatalf("expected staff 1 on TCK-000002, got %d, %v", staff, ok)
	}
	if id, ok := index.Get(43); !ok || id != "TCK-000002" {
		t.Fatalf("expected requester 43 mirrored into index, got %s, %v", id, ok)
	}
}

func TestClearRemovesAssignmentAndMirror(t *testing.T) {
	index := NewActiveIndex()
	tr := NewAssignmentTracker(index)

	tr.Assign(1, "TCK-000001", 42)
	a, ok := tr.Clear(1)
	if !ok || a.TicketID != "TCK-000001" || a.RequesterChatID != 42 {
		t.Fatalf("unexpected cleared assignment %+v, %v", a, ok)
	}
	if _, ok := tr.WhoIsHandling("TCK-000001"); ok {
		t.Fatalf("expected no handler after clear")
	}
	if _, ok := index.Get(42); ok {
		t.Fatalf("expected mirror removed")
	}
	if _, ok := tr.Clear(1); ok {
		t.Fatalf("second clear should report nothing")
	}
}

func TestClearKeepsIndexWhenRequesterMovedOn(t *testing.T) {
	index := NewActiveIndex()
	tr := NewAssignmentTracker(index)

	tr.Assign(1, "TCK-000001", 42)
	index.Set(42, "TCK-000009")
	tr.Clear(1)

	if id, ok := index.Get(42); !ok || id != "TCK-000009" {
		t.Fatalf("clear must not remove an unrelated index entry, got %s, %v", id, ok)
	}
}

func TestTicketHandledByTwoStaff(t *testing.T) {
	tr := NewAssignmentTracker(NewActiveIndex())

	tr.Assign(5, "TCK-000001", 42)
	tr.Assign(3, "TCK-000001", 42)

	if staff, ok := tr.WhoIsHandling("TCK-000001"); !ok || staff != 3 {
		t.Fatalf("expected lowest staff id 3, got %d, %v", staff, ok)
	}
	released := tr.ReleaseTicket("TCK-000001")
	if len(released) != 2 || tr.Count() != 0 {
		t.Fatalf("expected both staff released, got %v, count %d", released, tr.Count())
	}
}
