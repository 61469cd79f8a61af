package queue_test

import (
	"sync"
	"testing"

	"github.com/brickingsoft/ringio/pkg/aio/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.New[int]()
	if q.Dequeue() != nil {
		t.Fatal("empty dequeue returned a value")
	}
	for i := 0; i < 10; i++ {
		v := i
		q.Enqueue(&v)
	}
	if n := q.Length(); n != 10 {
		t.Fatalf("length = %d", n)
	}
	for i := 0; i < 10; i++ {
		v := q.Dequeue()
		if v == nil || *v != i {
			t.Fatalf("dequeue %d = %v", i, v)
		}
	}
	if q.Dequeue() != nil {
		t.Fatal("drained queue returned a value")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := queue.New[int]()
	const producers = 8
	const each = 1000
	wg := sync.WaitGroup{}
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				v := i
				q.Enqueue(&v)
			}
		}()
	}
	wg.Wait()
	count := 0
	for q.Dequeue() != nil {
		count++
	}
	if count != producers*each {
		t.Fatalf("dequeued %d of %d", count, producers*each)
	}
}
