package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsDefaultAndBump(t *testing.T) {
	v := NewVersions()

	assert.Equal(t, int64(1), v.Current(7))
	assert.Equal(t, int64(2), v.Bump(7))
	assert.Equal(t, int64(2), v.Current(7))
	assert.Equal(t, int64(3), v.Bump(7))

	assert.Equal(t, int64(1), v.Current(8), "other farmers are unaffected")
}

func TestVersionsConcurrentBumpsAreNotLost(t *testing.T) {
	v := NewVersions()
	const n = 200

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Bump(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1+n), v.Current(1))
}

func TestListingKey(t *testing.T) {
	q := ListingQuery{Page: 2, PageSize: 10, Sort: "newest", Search: "tomato"}

	k := ListingKey(5, 3, q)
	assert.Equal(t, "farmer_orders_5_v3_p2_s10_stALL_srnewest_q", k[:len(k)-8])

	assert.Equal(t, k, ListingKey(5, 3, q), "key is a pure function of its inputs")
	assert.NotEqual(t, k, ListingKey(5, 4, q), "version change yields a new key")

	q.Search = "Tomato"
	assert.NotEqual(t, k, ListingKey(5, 3, q))

	q.Status = "PENDING"
	assert.Contains(t, ListingKey(5, 3, q), "_stPENDING_")
}

func TestListingGetAdd(t *testing.T) {
	l := NewListing[[]int](4, time.Minute)

	_, ok := l.Get("a")
	assert.False(t, ok)

	l.Add("a", []int{1, 2})
	got, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}

func TestListingExpires(t *testing.T) {
	l := NewListing[string](4, 20*time.Millisecond)
	l.Add("a", "x")

	assert.Eventually(t, func() bool {
		_, ok := l.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
