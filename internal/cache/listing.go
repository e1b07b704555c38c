package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ListingQuery is the part of a listing request that selects a cached page.
type ListingQuery struct {
	Page     int
	PageSize int
	Status   string
	Sort     string
	Search   string
}

// ListingKey builds the cache key for one page of a farmer's listing. The
// version is part of the key, so a bump orphans every older entry.
func ListingKey(farmerID, version int64, q ListingQuery) string {
	status := q.Status
	if status == "" {
		status = "ALL"
	}
	sum := md5.Sum([]byte(q.Search))
	return fmt.Sprintf("farmer_orders_%d_v%d_p%d_s%d_st%s_sr%s_q%s",
		farmerID, version, q.Page, q.PageSize, status, q.Sort, hex.EncodeToString(sum[:])[:8])
}

// Listing is a size-bounded cache whose entries expire after a fixed TTL.
type Listing[V any] struct {
	lru *expirable.LRU[string, V]
}

func NewListing[V any](size int, ttl time.Duration) *Listing[V] {
	return &Listing[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (l *Listing[V]) Get(key string) (V, bool) {
	return l.lru.Get(key)
}

func (l *Listing[V]) Add(key string, v V) {
	l.lru.Add(key, v)
}

func (l *Listing[V]) Len() int {
	return l.lru.Len()
}
