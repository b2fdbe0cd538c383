package queue

import (
	"sort"
	"sync"
	"testing"
)

func TestQueueDrainsAfterAllProducersDone(t *testing.T) {
	const producers = 4
	const perProducer = 50

	q := New[int](8, producers)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
			q.Done()
		}(p)
	}

	var got []int
	for v := range q.Items() {
		got = append(got, v)
	}
	wg.Wait()

	if len(got) != producers*perProducer {
		t.Fatalf("expected %d items, got %d", producers*perProducer, len(got))
	}
	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestQueueWithZeroProducersIsImmediatelyClosed(t *testing.T) {
	q := New[int](1, 0)
	for range q.Items() {
		t.Fatal("expected no items")
	}
}
