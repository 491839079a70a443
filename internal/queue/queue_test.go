package queue

import (
	"sync"
	"testing"
)

type pendingWrite struct {
	Seq    int
	Action string
}

func TestPushPopKeepsFIFOOrder(t *testing.T) {
	q := New[pendingWrite]()

	q.Push(pendingWrite{Seq: 1, Action: "add"})
	q.Push(pendingWrite{Seq: 2, Action: "rename"}, pendingWrite{Seq: 3, Action: "remove"})

	if q.Len() != 3 {
		t.Fatalf("expected length 3, got %d", q.Len())
	}
	for want := 1; want <= 3; want++ {
		item, ok := q.PopOk()
		if !ok || item.Seq != want {
			t.Errorf("pop %d: got %+v ok=%v", want, item, ok)
		}
	}
	if !q.Empty() {
		t.Error("expected queue drained")
	}
}

func TestPopOnEmptyReturnsZeroValue(t *testing.T) {
	q := New[pendingWrite]()

	if got := q.Pop(); got.Seq != 0 || got.Action != "" {
		t.Errorf("expected zero value, got %+v", got)
	}
	if _, ok := q.PopOk(); ok {
		t.Error("PopOk on empty queue reported ok")
	}
}

func TestGetAndEmptyDrainsEverything(t *testing.T) {
	q := New[pendingWrite]()
	q.Push(pendingWrite{Seq: 1}, pendingWrite{Seq: 2}, pendingWrite{Seq: 3})

	drained := q.GetAndEmpty()
	if len(drained) != 3 || drained[2].Seq != 3 {
		t.Errorf("unexpected drain result: %+v", drained)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d", q.Len())
	}

	if got := q.GetAndEmpty(); len(got) != 0 {
		t.Errorf("second drain should be empty, got %+v", got)
	}
}

func TestClear(t *testing.T) {
	q := New[pendingWrite]()
	q.Push(pendingWrite{Seq: 1})
	q.Clear()

	if !q.Empty() {
		t.Error("expected empty queue after Clear")
	}
}

func TestConcurrentProducersAndDrain(t *testing.T) {
	q := New[pendingWrite]()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(pendingWrite{Seq: i})
			}
		}()
	}
	wg.Wait()

	if got := len(q.GetAndEmpty()); got != producers*perProducer {
		t.Errorf("expected %d items, got %d", producers*perProducer, got)
	}
}
