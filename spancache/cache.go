package spancache

import (
	"sort"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memreuse/recycle"
	"github.com/pkg/errors"
)

type cacheEntry struct {
	span recycle.Span
	used bool
}

// DefaultReuseFactor is the span-size multiplier used to bound reuse scans when no
// explicit factor is provided. A factor of 2 tolerates up to 100% slack in a reused
// span, which trades a bounded amount of internal fragmentation for hit rate.
const DefaultReuseFactor = 2

// Cache is an ordered store of memory spans, kept non-strictly sorted ascending by
// span size. Spans stay tracked for their entire lifetime in the cache- withdrawing
// a span marks it used without removing it, and depositing it again simply clears
// the used flag. At most one entry exists per span identity.
//
// Cache performs no synchronization of its own. It is owned exclusively by a
// consumer (usually a recycler.Allocator) which serializes access to it.
type Cache struct {
	reuseFactor int
	maxSpans    int
	entries     []cacheEntry
}

var _ recycle.Validatable = &Cache{}

// New creates an empty Cache. reuseFactor bounds how oversized a reused span may be
// relative to the requested size- a request for n bytes will only ever be satisfied
// by a span of at most n*reuseFactor bytes. It must be at least 1. Pass
// DefaultReuseFactor when in doubt.
//
// maxSpans caps how many spans the cache will track, or 0 for no cap. When the cap
// is reached, Deposit fails with recycle.OutOfMemoryError for spans not already
// tracked.
func New(reuseFactor int, maxSpans int) (*Cache, error) {
	if reuseFactor < 1 {
		return nil, cerrors.Errorf("reuseFactor must be at least 1, but was %d", reuseFactor)
	}
	if maxSpans < 0 {
		return nil, cerrors.Errorf("maxSpans must be non-negative, but was %d", maxSpans)
	}

	return &Cache{
		reuseFactor: reuseFactor,
		maxSpans:    maxSpans,
		entries:     []cacheEntry{},
	}, nil
}

// SpanCount returns the number of spans the cache currently tracks, used and unused.
func (c *Cache) SpanCount() int {
	return len(c.entries)
}

// IsEmpty returns true if the cache tracks no spans at all.
func (c *Cache) IsEmpty() bool {
	return len(c.entries) == 0
}

// ReuseFactor returns the span-size multiplier this cache was created with.
func (c *Cache) ReuseFactor() int {
	return c.reuseFactor
}

// LowerBoundSize returns the smallest index whose entry has a span size of at least
// size. If no entry qualifies, it returns SpanCount().
func (c *Cache) LowerBoundSize(size int) int {
	return sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].span.Size >= size
	})
}

// scanForUnused walks forward from start while entries remain within the reuse
// window for size, and claims the first unused entry it finds.
func (c *Cache) scanForUnused(start int, size int) (recycle.Span, bool) {
	limit := recycle.SaturatingMul(size, c.reuseFactor)

	for i := start; i < len(c.entries) && c.entries[i].span.Size <= limit; i++ {
		if !c.entries[i].used {
			c.entries[i].used = true
			return c.entries[i].span, true
		}
	}

	return recycle.Span{}, false
}

// Withdraw requests an unused span of at least size bytes. On success, the returned
// span is marked used and remains tracked by the cache. On failure, the caller is
// expected to acquire memory from its backing allocator instead.
//
// A span will only be returned if its size is no more than size*reuseFactor, so a
// small request never claims a grossly oversized span.
func (c *Cache) Withdraw(size int) (recycle.Span, bool) {
	if len(c.entries) == 0 || size <= 0 {
		return recycle.Span{}, false
	}

	if size <= c.entries[0].span.Size {
		// The binary-search lower bound is unreliable as a starting point for
		// requests at or below the smallest tracked size, where the first
		// entries may all be ties. Scan from the front instead.
		return c.scanForUnused(0, size)
	}

	if size > c.entries[len(c.entries)-1].span.Size {
		return recycle.Span{}, false
	}

	return c.scanForUnused(c.LowerBoundSize(size), size)
}

// Deposit records a span as available for reuse. If the span is already tracked,
// its used flag is cleared- depositing the same identity twice is idempotent and
// never duplicates an entry. Otherwise, a new unused entry is inserted at the
// span's sorted position.
//
// Deposit returns recycle.OutOfMemoryError if tracking the span would exceed the
// cache's span cap. The span is not tracked in that case and the caller remains
// responsible for it.
func (c *Cache) Deposit(span recycle.Span) error {
	idx := c.LowerBoundSize(span.Size)
	limit := recycle.SaturatingMul(span.Size, c.reuseFactor)

	for i := idx; i < len(c.entries) && c.entries[i].span.Size <= limit; i++ {
		if c.entries[i].span.Ptr == span.Ptr {
			c.entries[i].used = false
			return nil
		}
	}

	if c.maxSpans > 0 && len(c.entries) >= c.maxSpans {
		return cerrors.Wrapf(recycle.OutOfMemoryError, "cache already tracks the maximum of %d spans", c.maxSpans)
	}

	c.entries = append(c.entries, cacheEntry{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = cacheEntry{span: span}

	return nil
}

// Locate returns the index of the tracked entry with the same span identity,
// whether or not it is currently marked used. It returns false if the cache is
// empty, the span has zero size, or no identity match exists within the reuse
// window for the span's size.
func (c *Cache) Locate(span recycle.Span) (int, bool) {
	if len(c.entries) == 0 || span.Size == 0 {
		return 0, false
	}

	limit := recycle.SaturatingMul(span.Size, c.reuseFactor)

	for i := c.LowerBoundSize(span.Size); i < len(c.entries) && c.entries[i].span.Size <= limit; i++ {
		if c.entries[i].span.Ptr == span.Ptr {
			return i, true
		}
	}

	return 0, false
}

// RemoveAt stops tracking the entry at the provided index, preserving the order of
// the remaining entries. The index must have come from a Locate call with no
// intervening mutation.
func (c *Cache) RemoveAt(index int) {
	copy(c.entries[index:], c.entries[index+1:])
	c.entries = c.entries[:len(c.entries)-1]
}

// Clear hands every tracked span, used and unused, to the release callback and
// resets the cache to empty. Used entries are released too- teardown assumes no
// consumer still holds them.
func (c *Cache) Clear(release func(span recycle.Span)) {
	for i := range c.entries {
		release(c.entries[i].span)
	}

	c.entries = c.entries[:0]
}

// VisitAllSpans calls the provided callback once for each tracked span, in size
// order.
func (c *Cache) VisitAllSpans(visit func(span recycle.Span, used bool)) {
	for i := range c.entries {
		visit(c.entries[i].span, c.entries[i].used)
	}
}

// Validate performs internal consistency checks on the cache. These checks are
// expensive. When the cache is functioning correctly, it should not be possible
// for this method to return an error, but it may assist in diagnosing issues.
func (c *Cache) Validate() error {
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].span.Size < c.entries[i-1].span.Size {
			return errors.Errorf("entry at index %d has size %d, which is smaller than the size %d of the entry before it", i, c.entries[i].span.Size, c.entries[i-1].span.Size)
		}
	}

	for i := 0; i < len(c.entries); i++ {
		for j := i + 1; j < len(c.entries); j++ {
			if c.entries[i].span.Ptr == c.entries[j].span.Ptr {
				return errors.Errorf("entries at indices %d and %d track the same span identity", i, j)
			}
		}
	}

	return nil
}

// AddDetailedStatistics sums this cache's span statistics into the statistics
// currently present in the provided recycle.DetailedStatistics object.
func (c *Cache) AddDetailedStatistics(stats *recycle.DetailedStatistics) {
	for i := range c.entries {
		stats.AddSpan(c.entries[i].span.Size)

		if !c.entries[i].used {
			stats.AddUnusedSpan(c.entries[i].span.Size)
		}
	}
}

// CacheJsonData populates a json object with information about this cache
func (c *Cache) CacheJsonData(json jwriter.ObjectState) {
	var stats recycle.DetailedStatistics
	stats.Clear()
	c.AddDetailedStatistics(&stats)

	json.Name("TrackedSpans").Int(stats.SpanCount)
	json.Name("UnusedSpans").Int(stats.UnusedSpanCount)
	json.Name("TrackedBytes").Int(stats.SpanBytes)
	json.Name("UnusedBytes").Int(stats.UnusedBytes)

	spans := json.Name("Spans").Array()
	for i := range c.entries {
		o := spans.Object()
		o.Name("Size").Int(c.entries[i].span.Size)
		o.Name("Used").Bool(c.entries[i].used)
		o.End()
	}
	spans.End()
}
