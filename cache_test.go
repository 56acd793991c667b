package accessctl

import (
	"testing"
	"time"
)

func TestDecisionKeyString(t *testing.T) {
	k := decisionKey{UserID: "u1", Resource: "docs", Action: "read", ResourceID: "d42"}
	if got := k.String(); got != "u1-docs-read-d42" {
		t.Fatalf("unexpected key: %s", got)
	}
	k.ResourceID = ""
	if got := k.String(); got != "u1-docs-read-" {
		t.Fatalf("unexpected key without resource id: %s", got)
	}
}

func TestMapCacheTTLExpiry(t *testing.T) {
	c := newMapDecisionCache(30*time.Millisecond, 0)
	defer c.Close()

	key := decisionKey{UserID: "u1", Resource: "docs", Action: "read"}
	dec := &AccessDecision{Granted: true, Reason: "cached"}
	c.Set(key, dec)

	got, ok := c.Get(key)
	if !ok || !got.Granted {
		t.Fatalf("expected fresh entry to hit")
	}
	// the cache holds its own copy
	dec.Granted = false
	if got, _ := c.Get(key); !got.Granted {
		t.Fatalf("expected cached copy to be isolated from the caller's value")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected entry to expire")
	}
	// the expired read also reclaims the slot
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after expired read, got %d", c.Len())
	}
}

func TestMapCacheSweepReclaims(t *testing.T) {
	c := newMapDecisionCache(10*time.Millisecond, 20*time.Millisecond)
	defer c.Close()

	for _, r := range []string{"a", "b", "c"} {
		c.Set(decisionKey{UserID: "u1", Resource: r, Action: "read"}, &AccessDecision{Granted: true})
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep never reclaimed expired entries, %d left", c.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMapCacheClearAndClose(t *testing.T) {
	c := newMapDecisionCache(time.Minute, 0)
	c.Set(decisionKey{UserID: "u1", Resource: "docs", Action: "read"}, &AccessDecision{Granted: true})
	c.Set(decisionKey{UserID: "u2", Resource: "docs", Action: "read"}, &AccessDecision{Granted: false})
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d", c.Len())
	}
	c.Close()
	c.Close() // closing twice is safe
}

// waitForCached polls until the admission pipeline makes the entry visible.
func waitForCached(t *testing.T, c decisionCache, key decisionKey) *AccessDecision {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dec, ok := c.Get(key); ok {
			return dec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entry %s never became visible", key.String())
	return nil
}

func TestRistrettoCacheBackend(t *testing.T) {
	c, err := newRistrettoDecisionCache(RistrettoConfig{}, time.Minute)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()

	key := decisionKey{UserID: "u1", Resource: "docs", Action: "read"}
	c.Set(key, &AccessDecision{Granted: true, Reason: "cached"})

	dec := waitForCached(t, c, key)
	if !dec.Granted || dec.Reason != "cached" {
		t.Fatalf("unexpected cached decision: %+v", dec)
	}

	c.Clear()
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected miss after clear")
	}
	if c.Len() != 0 {
		t.Fatalf("expected zero length after clear, got %d", c.Len())
	}
}

func TestRistrettoCacheReadTimeExpiry(t *testing.T) {
	c, err := newRistrettoDecisionCache(RistrettoConfig{}, 40*time.Millisecond)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()

	key := decisionKey{UserID: "u1", Resource: "docs", Action: "read"}
	c.Set(key, &AccessDecision{Granted: true})
	waitForCached(t, c, key)

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected entry to expire")
	}
}
