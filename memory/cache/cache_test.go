package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(100)
	c.Set("k", "v", time.Minute, "ns")

	v, ok := c.Get("k", "ns")
	if !ok || v != "v" {
		t.Fatalf("Get = %v, %v, want v, true", v, ok)
	}
	if _, ok := c.Get("k", "other"); ok {
		t.Error("key visible from another namespace")
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(100)
	c.Set("k", "v", time.Second, "ns")

	if _, ok := c.Get("k", "ns"); !ok {
		t.Fatal("entry missing before TTL")
	}

	time.Sleep(1100 * time.Millisecond)
	if _, ok := c.Get("k", "ns"); ok {
		t.Error("entry alive past its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after lazy expiry, want 0", c.Len())
	}
}

func TestZeroTTLNotStored(t *testing.T) {
	c := New(100)
	c.Set("k", "v", 0, "ns")
	if _, ok := c.Get("k", "ns"); ok {
		t.Error("zero-TTL entry was stored")
	}
}

func TestOverwriteRefreshesTTL(t *testing.T) {
	c := New(100)
	c.Set("k", "old", time.Minute, "ns")
	c.Set("k", "new", time.Minute, "ns")

	if c.Len() != 1 {
		t.Errorf("Len = %d after overwrite, want 1", c.Len())
	}
	if v, _ := c.Get("k", "ns"); v != "new" {
		t.Errorf("Get = %v, want new", v)
	}
}

func TestInvalidateSingleKey(t *testing.T) {
	c := New(100)
	c.Set("a", 1, time.Minute, "ns")
	c.Set("b", 2, time.Minute, "ns")

	if n := c.Invalidate("a", "ns"); n != 1 {
		t.Errorf("Invalidate = %d, want 1", n)
	}
	if _, ok := c.Get("a", "ns"); ok {
		t.Error("invalidated key still readable")
	}
	if _, ok := c.Get("b", "ns"); !ok {
		t.Error("sibling key dropped")
	}
}

func TestInvalidateNamespaceOnly(t *testing.T) {
	c := New(100)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute, "user:alice")
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute, "user:bob")
	}

	if n := c.Invalidate("", "user:alice"); n != 5 {
		t.Errorf("Invalidate = %d, want 5", n)
	}
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i), "user:bob"); !ok {
			t.Fatalf("bob's entry k%d dropped with alice's namespace", i)
		}
	}
}

func TestInvalidateEverything(t *testing.T) {
	c := New(100)
	c.Set("a", 1, time.Minute, "x")
	c.Set("b", 2, time.Minute, "y")

	if n := c.Invalidate("", ""); n != 2 {
		t.Errorf("Invalidate = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestNamespaceKeyNoCollision(t *testing.T) {
	c := New(100)
	c.Set("bc", 1, time.Minute, "a")
	if _, ok := c.Get("c", "ab"); ok {
		t.Error("namespace+key concatenation collides")
	}
}

func TestBatchEvictionDropsColdEntries(t *testing.T) {
	c := New(20)
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute, "ns")
	}
	// Touch everything but the two coldest.
	time.Sleep(5 * time.Millisecond)
	for i := 2; i < 20; i++ {
		c.Get(fmt.Sprintf("k%d", i), "ns")
	}

	c.Set("overflow", 99, time.Minute, "ns")

	if c.Len() > 20 {
		t.Errorf("Len = %d, want bounded at 20", c.Len())
	}
	if _, ok := c.Get("overflow", "ns"); !ok {
		t.Error("new entry rejected instead of evicting cold ones")
	}
	if _, ok := c.Get("k0", "ns"); ok {
		t.Error("coldest entry survived the eviction batch")
	}
	if _, ok := c.Get("k10", "ns"); !ok {
		t.Error("recently touched entry was evicted")
	}
}

func TestPurgeExpired(t *testing.T) {
	c := New(100)
	c.Set("stale", 1, time.Millisecond, "ns")
	c.Set("live", 2, time.Minute, "ns")

	time.Sleep(10 * time.Millisecond)
	if n := c.PurgeExpired(); n != 1 {
		t.Errorf("PurgeExpired = %d, want 1", n)
	}
	if _, ok := c.Get("live", "ns"); !ok {
		t.Error("live entry purged")
	}
}

func TestGetStats(t *testing.T) {
	c := New(100)
	c.Set("a", 1, time.Minute, "ctx")
	c.Set("b", 2, time.Minute, "ctx")
	c.Set("c", 3, time.Millisecond, "search")
	time.Sleep(10 * time.Millisecond)

	st := c.GetStats()
	if st.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", st.TotalEntries)
	}
	if st.ExpiredEntries != 1 {
		t.Errorf("ExpiredEntries = %d, want 1", st.ExpiredEntries)
	}
	if st.Namespaces["ctx"] != 2 || st.Namespaces["search"] != 1 {
		t.Errorf("Namespaces = %v", st.Namespaces)
	}
}
