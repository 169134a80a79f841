package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestNew_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0).TTL())
	assert.Equal(t, 5*time.Second, New(5*time.Second).TTL())
}

func TestPutThenGetWithinTTL(t *testing.T) {
	c := New(time.Second)

	for _, key := range []string{"nifty50", "bankNifty", "historical_RELIANCE"} {
		payload := json.RawMessage(fmt.Sprintf(`{"key":%q}`, key))
		c.Put(key, payload, t0)

		e, ok := c.GetFresh(key, t0.Add(999*time.Millisecond))
		require.True(t, ok, key)
		assert.Equal(t, payload, e.Payload)
		assert.Equal(t, key, e.Key)
		assert.Equal(t, t0, e.Timestamp)
	}
}

func TestIsFresh_RejectsEntriesAtOrBeyondTTL(t *testing.T) {
	c := New(time.Second)
	c.Put("nifty50", json.RawMessage(`{}`), t0)

	e, ok := c.Get("nifty50")
	require.True(t, ok)

	assert.True(t, c.IsFresh(e, t0))
	assert.True(t, c.IsFresh(e, t0.Add(500*time.Millisecond)))
	assert.False(t, c.IsFresh(e, t0.Add(time.Second)))
	assert.False(t, c.IsFresh(e, t0.Add(time.Minute)))

	_, ok = c.GetFresh("nifty50", t0.Add(2*time.Second))
	assert.False(t, ok)

	// stale entries remain readable for fallbacks
	stale, ok := c.Get("nifty50")
	assert.True(t, ok)
	assert.JSONEq(t, `{}`, string(stale.Payload))
}

func TestIsFresh_ZeroEntry(t *testing.T) {
	c := New(time.Second)
	assert.False(t, c.IsFresh(Entry{}, t0))
}

func TestPut_OverwritesWholeEntry(t *testing.T) {
	c := New(time.Second)
	c.Put("nifty50", json.RawMessage(`{"v":1}`), t0)
	c.Put("nifty50", json.RawMessage(`{"v":2}`), t0.Add(3*time.Second))

	e, ok := c.GetFresh("nifty50", t0.Add(3500*time.Millisecond))
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload))
	assert.Equal(t, []string{"nifty50"}, c.Keys())
}

func TestPut_IgnoresEmptyPayload(t *testing.T) {
	c := New(time.Second)
	c.Put("nifty50", nil, t0)

	_, ok := c.Get("nifty50")
	assert.False(t, ok)
}

func TestKeys_Sorted(t *testing.T) {
	c := New(time.Second)
	c.Put("nifty50", json.RawMessage(`1`), t0)
	c.Put("bankNifty", json.RawMessage(`2`), t0)
	c.Put("historical_TCS", json.RawMessage(`3`), t0)

	assert.Equal(t, []string{"bankNifty", "historical_TCS", "nifty50"}, c.Keys())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Put("nifty50", json.RawMessage(fmt.Sprintf(`{"i":%d}`, i)), t0)
		}(i)
		go func() {
			defer wg.Done()
			c.Get("nifty50")
		}()
	}
	wg.Wait()

	_, ok := c.Get("nifty50")
	assert.True(t, ok)
}
