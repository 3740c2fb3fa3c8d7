package supervisor

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	k.Lock("a")

	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}

	blocked := make(chan struct{})
	go func() {
		k.Lock("a")
		k.Unlock("a")
		close(blocked)
	}()
	select {
	case <-blocked:
		t.Fatal("second lock on a did not wait")
	case <-time.After(50 * time.Millisecond):
	}
	k.Unlock("a")
	<-blocked

	if n := k.len(); n != 0 {
		t.Errorf("locks left = %d, want 0", n)
	}
}

func TestKeyedMutexSerializes(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("x")
			counter++
			k.Unlock("x")
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := k.len(); n != 0 {
		t.Errorf("locks left = %d, want 0", n)
	}
}
