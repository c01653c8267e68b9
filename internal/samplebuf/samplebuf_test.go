package samplebuf

import "testing"

func TestFIFOOrderAndSequence(t *testing.T) {
	t.Parallel()

	b := New()
	if b.Len() != 0 || b.Head() != 0 {
		t.Fatalf("empty buffer: len %d head %d", b.Len(), b.Head())
	}

	// Interleave pushes and pops so the ring wraps while growing.
	var next, want int32
	for round := range 5 {
		for range 700 * (round + 1) {
			b.Push(next)
			next++
		}
		for range 500 {
			if got := b.Pop(); got != want {
				t.Fatalf("pop: got %d want %d", got, want)
			}
			want++
		}
		if b.Head() != int64(want) {
			t.Fatalf("head: got %d want %d", b.Head(), want)
		}
		if b.Len() != int(next-want) {
			t.Fatalf("len: got %d want %d", b.Len(), next-want)
		}
	}
	for b.Len() > 0 {
		if got := b.Pop(); got != want {
			t.Fatalf("drain: got %d want %d", got, want)
		}
		want++
	}
	if b.Head() != int64(next) {
		t.Fatalf("head after drain: got %d want %d", b.Head(), next)
	}
}

func TestPopEmptyPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New().Pop()
}
