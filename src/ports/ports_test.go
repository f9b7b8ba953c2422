package ports

import (
	"sync"
	"testing"
)

func TestIncrementalSequence(t *testing.T) {
	alloc := NewIncremental(10000)

	for i := 0; i < 50; i++ {
		if got := alloc.NextPort(); got != 10000+i {
			t.Fatalf("call %d: expected %d, got %d", i, 10000+i, got)
		}
	}
}

func TestIncrementalConcurrentUnique(t *testing.T) {
	alloc := NewIncremental(20000)

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := alloc.NextPort()
			mu.Lock()
			defer mu.Unlock()
			if seen[p] {
				t.Errorf("port %d handed out twice", p)
			}
			seen[p] = true
		}()
	}
	wg.Wait()

	for p := 20000; p < 20100; p++ {
		if !seen[p] {
			t.Fatalf("port %d missing", p)
		}
	}
}

func TestRandomFree(t *testing.T) {
	p := RandomFree{}.NextPort()
	if p <= 0 || p > 65535 {
		t.Fatalf("invalid port %d", p)
	}
}

func TestHostAndPort(t *testing.T) {
	addr := NextHostAndPort(NewIncremental(5005))
	if addr != "localhost:5005" {
		t.Fatalf("unexpected address %s", addr)
	}

	host, port, err := SplitHostPort(addr)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if host != "localhost" || port != 5005 {
		t.Fatalf("unexpected split %s %d", host, port)
	}
}
