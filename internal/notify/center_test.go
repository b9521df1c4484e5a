package notify

import "testing"

func TestPushSetsUnseen(t *testing.T) {
	c := NewCenter()
	if c.HasNew() {
		t.Fatal("fresh center should have no unseen notices")
	}
	c.Push("order shipped")
	if !c.HasNew() {
		t.Fatal("push should set the unseen flag")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestDismissRemovesExactlyOneKeepingOrder(t *testing.T) {
	c := NewCenter()
	first := c.Push("first")
	second := c.Push("second")
	third := c.Push("third")

	if !c.Dismiss(second.ID) {
		t.Fatal("dismiss of an existing id should report true")
	}

	rest := c.List()
	if len(rest) != 2 {
		t.Fatalf("len = %d, want 2", len(rest))
	}
	if rest[0].ID != first.ID || rest[1].ID != third.ID {
		t.Fatalf("order changed after dismiss: %+v", rest)
	}

	if c.Dismiss("no-such-id") {
		t.Fatal("dismiss of an unknown id should report false")
	}
	if c.Len() != 2 {
		t.Fatalf("unknown dismiss must not remove entries, len = %d", c.Len())
	}
}

func TestClearAlwaysEmpties(t *testing.T) {
	c := NewCenter()
	c.Clear() // empty clear is fine

	for i := 0; i < 5; i++ {
		c.Push("notice")
	}
	c.Clear()
	if c.Len() != 0 || c.HasNew() {
		t.Fatal("clear should empty the list and the unseen flag")
	}
}

func TestOpenClearsFlagButKeepsEntries(t *testing.T) {
	c := NewCenter()
	c.Push("one")
	c.Push("two")

	entries := c.Open()
	if len(entries) != 2 {
		t.Fatalf("Open() returned %d entries, want 2", len(entries))
	}
	if c.HasNew() {
		t.Fatal("opening the list should acknowledge the unseen flag")
	}
	if c.Len() != 2 {
		t.Fatal("opening the list must not remove entries")
	}
}
