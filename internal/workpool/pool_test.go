package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	for _, tc := range []struct {
		hint, n, want int
	}{
		{hint: 0, n: 10, want: 1},
		{hint: -5, n: 10, want: 1},
		{hint: 4, n: 10, want: 4},
		{hint: 40, n: 10, want: 10},
		{hint: 500, n: 1000, want: 100},
		{hint: 8, n: 0, want: 1},
	} {
		if got := Clamp(tc.hint, tc.n); got != tc.want {
			t.Fatalf("Clamp(%d, %d) = %d, want %d", tc.hint, tc.n, got, tc.want)
		}
	}
}

func TestMapPreservesInputOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1, 0}
	out, err := Map(context.Background(), items, 6, func(_ context.Context, i int, v int) (int, error) {
		// Later items finish first.
		time.Sleep(time.Duration(v) * 3 * time.Millisecond)
		return i*10 + v, nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i, v := range items {
		if out[i] != i*10+v {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], i*10+v)
		}
	}
}

func TestMapRespectsLimit(t *testing.T) {
	var active, peak int32
	items := make([]int, 20)
	_, err := Map(context.Background(), items, 3, func(context.Context, int, int) (struct{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds limit 3", peak)
	}
}

func TestMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Map(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
