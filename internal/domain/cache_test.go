package domain

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move the cache's notion of now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*PageCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewPageCache(ttl)
	cache.now = clock.Now
	return cache, clock
}

func pageWithText(text string) Page {
	return Page{
		Items:       []FeedEntry{{Post: Post{Text: text}}},
		CurrentPage: 1,
		TotalPages:  1,
	}
}

func TestCacheServesLiveEntryWithoutRecompute(t *testing.T) {
	cache, clock := newTestCache(20 * time.Second)

	calls := 0
	compute := func() (Page, error) {
		calls++
		return pageWithText("first"), nil
	}

	got, err := cache.GetOrCompute("k", compute)
	if err != nil {
		t.Fatal(err)
	}
	if got.Items[0].Post.Text != "first" {
		t.Fatalf("got %q", got.Items[0].Post.Text)
	}

	// Within TTL the stored value is returned even though the compute
	// function would now produce something else.
	clock.Advance(19 * time.Second)
	got, err = cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("second"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Items[0].Post.Text != "first" {
		t.Errorf("within TTL: got %q, want cached %q", got.Items[0].Post.Text, "first")
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	cache, clock := newTestCache(20 * time.Second)

	if _, err := cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("stale"), nil
	}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(20 * time.Second)
	got, err := cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("fresh"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Items[0].Post.Text != "fresh" {
		t.Errorf("after TTL: got %q, want %q", got.Items[0].Post.Text, "fresh")
	}
}

func TestCacheComputeErrorPropagatesWithoutPoisoning(t *testing.T) {
	cache, _ := newTestCache(20 * time.Second)

	wantErr := errors.New("store unavailable")
	if _, err := cache.GetOrCompute("k", func() (Page, error) {
		return Page{}, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("got err %v, want %v", err, wantErr)
	}

	// The failed computation must not have written an entry: the next
	// call computes again.
	got, err := cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("recovered"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Items[0].Post.Text != "recovered" {
		t.Errorf("got %q, want %q", got.Items[0].Post.Text, "recovered")
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	cache, _ := newTestCache(time.Hour)

	if _, err := cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("old"), nil
	}); err != nil {
		t.Fatal(err)
	}

	cache.InvalidateAll()

	got, err := cache.GetOrCompute("k", func() (Page, error) {
		return pageWithText("new"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Items[0].Post.Text != "new" {
		t.Errorf("got %q, want %q after invalidation", got.Items[0].Post.Text, "new")
	}
}

func TestCacheKeysAreIndependent(t *testing.T) {
	cache, _ := newTestCache(time.Hour)

	for _, key := range []string{"a", "b"} {
		key := key
		if _, err := cache.GetOrCompute(key, func() (Page, error) {
			return pageWithText(key), nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := cache.GetOrCompute("a", func() (Page, error) {
		return pageWithText("miss"), nil
	})
	if got.Items[0].Post.Text != "a" {
		t.Errorf("key a: got %q", got.Items[0].Post.Text)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache, _ := newTestCache(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.GetOrCompute("k", func() (Page, error) {
				return pageWithText("shared"), nil
			})
			if err != nil {
				t.Error(err)
				return
			}
			if got.Items[0].Post.Text != "shared" {
				t.Errorf("got %q", got.Items[0].Post.Text)
			}
		}()
	}
	wg.Wait()
}
