package semaphores_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brickingsoft/ringio/pkg/semaphores"
)

func TestSemaphores(t *testing.T) {
	s := semaphores.New()
	defer s.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Signal()
	}()
	if err := s.Wait(context.Background(), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
}

func TestSemaphoresDeadline(t *testing.T) {
	s := semaphores.New()
	defer s.Close()

	err := s.Wait(context.Background(), time.Now().Add(10*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected deadline exceeded, got", err)
	}
}
