package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerialRunsInline(t *testing.T) {
	var order []int
	s := NewSerial()
	s.Launch(func() { order = append(order, 1) })
	order = append(order, 2)

	if len(order) != 2 || order[0] != 1 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const max = 3
	p := NewPool(max)

	var active, peak atomic.Int32
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		p.Launch(func() {
			n := active.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		})
	}
	p.Wait()

	if peak.Load() > max {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), max)
	}
}

func TestPoolRunsEverything(t *testing.T) {
	p := NewPool(4)
	var count atomic.Int32
	for i := 0; i < 50; i++ {
		p.Launch(func() { count.Add(1) })
	}
	p.Wait()
	if count.Load() != 50 {
		t.Errorf("count = %d, want 50", count.Load())
	}
}

func TestPoolDefaultsToOne(t *testing.T) {
	p := NewPool(0)
	if got := p.Capabilities().MaxConcurrency; got != 1 {
		t.Errorf("MaxConcurrency = %d, want 1", got)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(NameSerial, NewSerial())
	r.Register(NamePool, NewPool(4))

	e, err := r.Resolve(NamePool)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !e.Capabilities().Concurrent {
		t.Error("pool executor should report concurrent")
	}

	if _, err := r.Resolve("remote"); err == nil {
		t.Error("Resolve of unregistered executor should fail")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NameSerial, NewSerial())
	r.Register(NamePool, NewPool(2))

	infos := r.List()
	if len(infos) != 2 {
		t.Fatalf("len = %d, want 2", len(infos))
	}
	if infos[0].Name != NamePool || infos[1].Name != NameSerial {
		t.Errorf("list order = [%s %s], want [pool serial]", infos[0].Name, infos[1].Name)
	}
}
