package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedTemplate struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "template:"), mr
}

func TestCacheHelperSetGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	want := cachedTemplate{ID: 7, Title: "Final Exam"}
	if err := helper.Set(ctx, "7", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got cachedTemplate
	if err := helper.Get(ctx, "7", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCacheHelperGetMiss(t *testing.T) {
	helper, _ := newTestHelper(t)

	var got cachedTemplate
	if err := helper.Get(context.Background(), "missing", &got); err != ErrCacheNotFound {
		t.Errorf("got %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelperDelete(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "1", cachedTemplate{ID: 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := helper.Set(ctx, "2", cachedTemplate{ID: 2}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := helper.Delete(ctx, "1", "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got cachedTemplate
	if err := helper.Get(ctx, "1", &got); err != ErrCacheNotFound {
		t.Errorf("key 1 still cached: %v", err)
	}
	if err := helper.Get(ctx, "2", &got); err != ErrCacheNotFound {
		t.Errorf("key 2 still cached: %v", err)
	}
}

func TestCacheHelperExpiry(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "7", cachedTemplate{ID: 7}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var got cachedTemplate
	if err := helper.Get(ctx, "7", &got); err != ErrCacheNotFound {
		t.Errorf("got %v, want ErrCacheNotFound after TTL", err)
	}
}

func TestCacheHelperInvalidatePattern(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"7", "7:questions", "8"} {
		if err := helper.Set(ctx, key, cachedTemplate{}, time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "7*"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	var got cachedTemplate
	if err := helper.Get(ctx, "7", &got); err != ErrCacheNotFound {
		t.Errorf("key 7 still cached: %v", err)
	}
	if err := helper.Get(ctx, "7:questions", &got); err != ErrCacheNotFound {
		t.Errorf("key 7:questions still cached: %v", err)
	}
	if err := helper.Get(ctx, "8", &got); err != nil {
		t.Errorf("key 8 should survive: %v", err)
	}
}

func TestCacheHelperNilClient(t *testing.T) {
	helper := NewCacheHelper(nil, "template:")
	ctx := context.Background()

	if err := helper.Set(ctx, "7", cachedTemplate{}, time.Minute); err != nil {
		t.Errorf("set with nil client: %v", err)
	}
	var got cachedTemplate
	if err := helper.Get(ctx, "7", &got); err != ErrCacheNotAvailable {
		t.Errorf("got %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Delete(ctx, "7"); err != nil {
		t.Errorf("delete with nil client: %v", err)
	}
	if err := helper.InvalidatePattern(ctx, "*"); err != nil {
		t.Errorf("invalidate with nil client: %v", err)
	}
}

func TestCacheOrExecute(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedTemplate{ID: 9, Title: "Quiz"}, nil
	}

	var first cachedTemplate
	if err := helper.CacheOrExecute(ctx, "9", &first, time.Minute, fetch); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
	if first.ID != 9 || first.Title != "Quiz" {
		t.Errorf("got %+v", first)
	}

	// The write-behind goroutine races the second read; poll until cached.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var cached cachedTemplate
		if err := helper.Get(ctx, "9", &cached); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	var second cachedTemplate
	if err := helper.CacheOrExecute(ctx, "9", &second, time.Minute, fetch); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times after cache hit, want 1", calls)
	}
	if second != first {
		t.Errorf("got %+v, want %+v", second, first)
	}
}
