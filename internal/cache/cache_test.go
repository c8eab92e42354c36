package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/opensource-finance/casewatch/internal/bus"
	"github.com/opensource-finance/casewatch/internal/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	clock := &fakeClock{t: time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)}
	cache.now = clock.now
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, ComplaintKey("CF2024000001"), []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, ComplaintKey("CF2024000001"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.advance(11 * time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest.
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to survive")
		}
		if size, capacity := small.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		key := ThrottleKey("9876543210")
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, key, time.Hour)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}

		clock.advance(time.Hour + time.Second)

		if got, _ := cache.IncrementCounter(ctx, key, time.Hour); got != 1 {
			t.Errorf("expected window reset to 1, got %d", got)
		}
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		in := domain.StatusInfo{Status: domain.StatusFundsFrozen, Progress: 60}
		if err := SetJSON(ctx, cache, "status", in, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var out domain.StatusInfo
		ok, err := GetJSON(ctx, cache, "status", &out)
		if err != nil || !ok {
			t.Fatalf("GetJSON failed: ok=%v err=%v", ok, err)
		}
		if out.Status != domain.StatusFundsFrozen || out.Progress != 60 {
			t.Errorf("unexpected value: %+v", out)
		}

		ok, _ = GetJSON(ctx, cache, "missing", &out)
		if ok {
			t.Error("expected miss")
		}
	})

	t.Run("Close", func(t *testing.T) {
		_ = cache.Close()
		if size, _ := cache.Stats(); size != 0 {
			t.Errorf("expected empty cache after close, got %d", size)
		}
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSetDelete", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheWithClient(db)

		mock.ExpectSet("casewatch:complaint:CF2024000001", []byte("payload"), time.Minute).SetVal("OK")
		mock.ExpectGet("casewatch:complaint:CF2024000001").SetVal("payload")
		mock.ExpectDel("casewatch:complaint:CF2024000001").SetVal(1)
		mock.ExpectGet("casewatch:complaint:CF2024000001").RedisNil()

		if err := cache.Set(ctx, ComplaintKey("CF2024000001"), []byte("payload"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, ComplaintKey("CF2024000001"))
		if err != nil || string(val) != "payload" {
			t.Fatalf("Get returned %q, %v", val, err)
		}
		if err := cache.Delete(ctx, ComplaintKey("CF2024000001")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		val, err = cache.Get(ctx, ComplaintKey("CF2024000001"))
		if err != nil || val != nil {
			t.Errorf("expected miss, got %q, %v", val, err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewRedisCacheWithClient(db)

		key := "casewatch:counter:" + ThrottleKey("9876543210")
		mock.ExpectEvalSha(incrementScript.Hash(), []string{key}, int64(86400000)).SetVal(int64(4))

		n, err := cache.IncrementCounter(ctx, ThrottleKey("9876543210"), 24*time.Hour)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if n != 4 {
			t.Errorf("expected 4, got %d", n)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	cache := newTwoPhase(NewLRUCache(10), NewRedisCacheWithClient(db), time.Minute)

	// A remote hit populates L1, so the second read never reaches Redis.
	mock.ExpectGet("casewatch:" + StatsKey).SetVal(`{"totalComplaints":3}`)

	for i := 0; i < 2; i++ {
		val, err := cache.Get(ctx, StatsKey)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != `{"totalComplaints":3}` {
			t.Errorf("unexpected value %q", val)
		}
	}

	mock.ExpectDel("casewatch:" + StatsKey).SetVal(1)
	if err := cache.Delete(ctx, StatsKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if val, _ := cache.local.Get(ctx, StatsKey); val != nil {
		t.Error("expected L1 entry removed")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTwoPhaseCacheInvalidatesPeers(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(10)
	defer b.Close()

	dbA, mockA := redismock.NewClientMock()
	dbB, _ := redismock.NewClientMock()
	nodeA := newTwoPhase(NewLRUCache(10), NewRedisCacheWithClient(dbA), time.Minute)
	nodeB := newTwoPhase(NewLRUCache(10), NewRedisCacheWithClient(dbB), time.Minute)
	for _, n := range []*TwoPhaseCache{nodeA, nodeB} {
		if err := n.Attach(ctx, b); err != nil {
			t.Fatalf("Attach failed: %v", err)
		}
	}

	key := ComplaintKey("CF2024000001")
	other := ComplaintKey("CF2024000002")
	for _, n := range []*TwoPhaseCache{nodeA, nodeB} {
		n.local.Set(ctx, key, []byte(`{"status":"PENDING"}`), time.Minute)
		n.local.Set(ctx, other, []byte(`{"status":"PENDING"}`), time.Minute)
	}

	// A transition on node A must not leave node B serving the old status.
	mockA.ExpectDel("casewatch:" + key).SetVal(1)
	if err := nodeA.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		val, _ := nodeB.local.Get(ctx, key)
		if val == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("peer L1 entry was not invalidated")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if val, _ := nodeB.local.Get(ctx, other); val == nil {
		t.Error("unrelated key should stay cached on the peer")
	}
	if err := mockA.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
