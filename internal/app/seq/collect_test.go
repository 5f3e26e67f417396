package seq

import (
	"errors"
	"iter"
	"testing"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := func(yield func(int, error) bool) {
		if !yield(1, nil) {
			return
		}
		yield(0, boom)
	}
	if _, err := Collect(iter.Seq2[int, error](failing)); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}

	ok := func(yield func(int, error) bool) {
		for i := range 3 {
			if !yield(i, nil) {
				return
			}
		}
	}
	got, err := Collect(iter.Seq2[int, error](ok))
	if err != nil || len(got) != 3 || got[2] != 2 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
