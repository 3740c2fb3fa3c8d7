package registry

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSetGetDelete(t *testing.T) {
	r := New[int]()

	if r.Has("a") {
		t.Error("empty registry reports a")
	}
	r.Set("a", 1)
	if v, ok := r.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	r.Set("a", 2)
	if v, _ := r.Get("a"); v != 2 {
		t.Errorf("Set should replace, got %d", v)
	}
	if v, ok := r.Delete("a"); !ok || v != 2 {
		t.Errorf("Delete(a) = %d, %v", v, ok)
	}
	if _, ok := r.Delete("a"); ok {
		t.Error("second Delete should report false")
	}
}

func TestAddIsPutIfAbsent(t *testing.T) {
	r := New[string]()
	if !r.Add("acct1", "first") {
		t.Fatal("first Add should succeed")
	}
	if r.Add("acct1", "second") {
		t.Fatal("second Add should fail")
	}
	if v, _ := r.Get("acct1"); v != "first" {
		t.Errorf("entry = %q, want first", v)
	}
}

func TestAddConcurrent(t *testing.T) {
	r := New[int]()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Add("acct1", i) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("wins = %d, want 1", wins.Load())
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestDeleteIf(t *testing.T) {
	r := New[int]()
	r.Set("a", 2)

	if r.DeleteIf("a", func(v int) bool { return v == 1 }) {
		t.Error("DeleteIf removed a non-matching entry")
	}
	if !r.DeleteIf("a", func(v int) bool { return v == 2 }) {
		t.Error("DeleteIf should remove matching entry")
	}
	if r.DeleteIf("missing", func(int) bool { return true }) {
		t.Error("DeleteIf on missing id should report false")
	}
}

func TestListSorted(t *testing.T) {
	r := New[struct{}]()
	for _, id := range []string{"c", "a", "b"} {
		r.Set(id, struct{}{})
	}
	got := r.List()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() = %v, want %v", got, want)
		}
	}
}
