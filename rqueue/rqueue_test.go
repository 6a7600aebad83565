// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package rqueue_test

import (
	"math/rand"
	"testing"

	"github.com/creachadair/utpdrv/rqueue"
	"github.com/google/go-cmp/cmp"
)

func fill(sizes ...int) *rqueue.Queue {
	q := rqueue.New()
	c := byte('a')
	for _, n := range sizes {
		d := make([]byte, n)
		for i := range d {
			d[i] = c
		}
		c++
		q.Enqueue(d)
	}
	return q
}

func TestEnqueue(t *testing.T) {
	q := fill(3, 0, 5, 1)
	if got, want := q.Len(), 9; got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}
	if diff := cmp.Diff([]int{3, 5, 1}, q.Boundaries()); diff != "" {
		t.Errorf("Boundaries (-want, +got):\n%s", diff)
	}
	if got, want := q.Records(), 3; got != want {
		t.Errorf("Records: got %d, want %d", got, want)
	}
	if got, want := q.Recorded(), 9; got != want {
		t.Errorf("Recorded: got %d, want %d", got, want)
	}

	// Boundaries must not disturb the order of the records.
	if diff := cmp.Diff([]int{3, 5, 1}, q.Boundaries()); diff != "" {
		t.Errorf("Boundaries (second read) (-want, +got):\n%s", diff)
	}
}

func TestConsume(t *testing.T) {
	q := fill(3, 2)
	if got := string(q.Peek(4)); got != "aaab" {
		t.Errorf("Peek(4): got %q, want %q", got, "aaab")
	}
	data, n := q.Consume(4)
	if got := string(data); got != "aaab" {
		t.Errorf("Consume(4): got %q, want %q", got, "aaab")
	}
	if n != 1 {
		t.Errorf("Consume(4): %d bytes remain, want 1", n)
	}

	// Consume does not touch the records.
	if diff := cmp.Diff([]int{3, 2}, q.Boundaries()); diff != "" {
		t.Errorf("Boundaries (-want, +got):\n%s", diff)
	}
	if n := q.Discard(1); n != 0 {
		t.Errorf("Discard(1): %d bytes remain, want 0", n)
	}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		sizes []int
		n     int
		want  []int
	}{
		{[]int{5, 5, 5}, 0, []int{5, 5, 5}},
		{[]int{5, 5, 5}, 5, []int{5, 5}},
		{[]int{5, 5, 5}, 7, []int{3, 5}},
		{[]int{5, 5, 5}, 10, []int{5}},
		{[]int{5, 5, 5}, 14, []int{1}},
		{[]int{5, 5, 5}, 15, nil},
		{[]int{5, 5, 5}, 20, nil},
		{[]int{4}, 1, []int{3}},
		{[]int{1, 1, 1, 8}, 4, []int{7}},
	}
	for _, test := range tests {
		q := fill(test.sizes...)
		q.Reduce(test.n)
		if diff := cmp.Diff(test.want, q.Boundaries()); diff != "" {
			t.Errorf("Reduce(%d) of %v (-want, +got):\n%s", test.n, test.sizes, diff)
		}
	}
}

func TestReduceProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(20121129))
	for i := 0; i < 500; i++ {
		var sizes []int
		for j := rng.Intn(8); j >= 0; j-- {
			sizes = append(sizes, 1+rng.Intn(40))
		}
		q := fill(sizes...)

		// Apply several reductions, checking the invariants after each.
		for q.Recorded() > 0 {
			before := q.Recorded()
			n := rng.Intn(before + 1)
			q.Reduce(n)

			sum := 0
			for _, b := range q.Boundaries() {
				if b <= 0 {
					t.Fatalf("Reduce(%d) of %v left a record of length %d", n, sizes, b)
				}
				sum += b
			}
			if sum != before-n {
				t.Fatalf("Reduce(%d) of %v: sum is %d, want %d", n, sizes, sum, before-n)
			}
			if sum != q.Recorded() {
				t.Fatalf("Recorded: got %d, want %d", q.Recorded(), sum)
			}
		}
	}
}

func TestPopRecord(t *testing.T) {
	q := fill(2, 3)
	q.Reduce(1)
	if got := q.PopRecord(); got != 1 {
		t.Errorf("PopRecord: got %d, want 1", got)
	}
	if got := q.PopRecord(); got != 3 {
		t.Errorf("PopRecord: got %d, want 3", got)
	}
	if got := q.PopRecord(); got != 0 {
		t.Errorf("PopRecord (empty): got %d, want 0", got)
	}
	if q.Recorded() != 0 || q.Records() != 0 {
		t.Errorf("After pops: recorded=%d records=%d, want 0, 0", q.Recorded(), q.Records())
	}
}

func TestClear(t *testing.T) {
	q := fill(5, 5, 5)
	q.ClearRecords()
	if q.Records() != 0 || q.Recorded() != 0 {
		t.Errorf("ClearRecords: records=%d recorded=%d, want 0, 0", q.Records(), q.Recorded())
	}
	if q.Len() != 15 {
		t.Errorf("ClearRecords: Len=%d, want 15", q.Len())
	}
	q.Enqueue([]byte("xy"))
	if diff := cmp.Diff([]int{2}, q.Boundaries()); diff != "" {
		t.Errorf("Boundaries after clear (-want, +got):\n%s", diff)
	}
	q.Reset()
	if q.Len() != 0 || q.Records() != 0 {
		t.Errorf("Reset: Len=%d records=%d, want 0, 0", q.Len(), q.Records())
	}
}
