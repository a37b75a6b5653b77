package notify

import "testing"

func TestBoard_PushAndRecent(t *testing.T) {
	b := NewBoard(3)
	b.Push("one")
	b.Push("two")

	got, dropped := b.Recent(0)
	if dropped != 0 {
		t.Fatalf("dropped=%d want 0", dropped)
	}
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "two" {
		t.Fatalf("Recent=%v", got)
	}
}

func TestBoard_RingDropsOldest(t *testing.T) {
	b := NewBoard(2)
	b.Push("a")
	b.Push("b")
	b.Push("c")

	got, dropped := b.Recent(0)
	if dropped != 1 {
		t.Fatalf("dropped=%d want 1", dropped)
	}
	if len(got) != 2 || got[0].Text != "b" || got[1].Text != "c" {
		t.Fatalf("Recent=%v", got)
	}
}

func TestBoard_Tail(t *testing.T) {
	b := NewBoard(10)
	b.Push("a")
	b.Push("b")
	b.Push("c")

	got, _ := b.Recent(2)
	if len(got) != 2 || got[0].Text != "b" {
		t.Fatalf("Recent(2)=%v", got)
	}
}

func TestBoard_NilAndEmptySafe(t *testing.T) {
	var b *Board
	b.Push("ignored")
	if got, _ := b.Recent(5); got != nil {
		t.Fatalf("nil board Recent=%v", got)
	}

	nb := NewBoard(2)
	nb.Push("")
	if got, _ := nb.Recent(0); len(got) != 0 {
		t.Fatalf("empty push recorded: %v", got)
	}
}
