package recycler

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memreuse/recycle"
	"github.com/memreuse/recycle/internal/utils"
	"github.com/memreuse/recycle/spancache"
	"golang.org/x/exp/slog"
)

// Allocator is a size-ordered block-recycling allocator. It satisfies the
// recycle.Allocator contract by retaining spans freed through it and reusing
// them for allocation requests of a similar size, delegating to a backing
// allocator only on cache miss. Because it implements the same contract it
// consumes, it can be dropped in anywhere a recycle.Allocator is accepted.
//
// A single mutex serializes every operation, including the delegation call
// into the backing allocator. This is a deliberate simplicity tradeoff- under
// many concurrent goroutines the allocator becomes a contention point, which
// is a scalability limitation rather than a correctness concern. The mutex can
// be disabled with AllocatorCreateExternallySynchronized.
//
// Reused spans are handed back without re-validating alignment, so consumers
// must request a consistent alignment class for the lifetime of the allocator,
// or segregate one allocator per alignment class.
type Allocator struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex

	backing         recycle.Allocator
	cache           *spancache.Cache
	memoryCallbacks memoryCallbacks

	hitCount  int
	missCount int
}

var _ recycle.Allocator = &Allocator{}

// Allocate returns a pointer to at least size bytes, reusing a cached span
// when one of acceptable size is available and delegating to the backing
// allocator otherwise. Spans acquired from the backing allocator are not
// tracked until they are freed through this allocator.
func (a *Allocator) Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, errors.Errorf("allocation size must be positive, but was %d", size)
	}
	if alignment == 0 {
		alignment = 1
	}
	if err := recycle.CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	recycle.DebugValidate(a.cache)

	span, ok := a.cache.Withdraw(size)
	if ok {
		a.hitCount++

		if recycle.DebugMargin > 0 && span.Size >= recycle.DebugMargin && !recycle.ValidateMagicValue(span.Ptr, 0) {
			a.logger.LogAttrs(context.Background(), slog.LevelError,
				"[CORRUPTION] cached span was written to while unused",
				slog.Int("Size", span.Size))
		}

		a.logger.Debug("Allocator::Allocate - reused cached span",
			slog.Int("RequestedSize", size), slog.Int("SpanSize", span.Size))
		return span.Ptr, nil
	}

	a.missCount++

	ptr, err := a.backing.Allocate(size, alignment)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes from the backing allocator", size)
	}

	a.memoryCallbacks.Allocate(recycle.Span{Ptr: ptr, Size: size})
	a.logger.Debug("Allocator::Allocate - allocated from backing allocator",
		slog.Int("Size", size))

	return ptr, nil
}

// ResizeInPlace attempts to grow or shrink a span currently tracked by this
// allocator without moving it. On success the span is re-homed in the cache at
// its new size, so future requests find it at the sorted position appropriate
// to that size. If the span is not tracked, or the backing allocator cannot
// resize it where it lives, ResizeInPlace returns false with no effect on the
// cache and the caller is expected to fall back to Allocate+copy+Free.
func (a *Allocator) ResizeInPlace(span recycle.Span, alignment uint, newSize int) bool {
	if newSize <= 0 {
		return false
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	recycle.DebugValidate(a.cache)

	index, ok := a.cache.Locate(span)
	if !ok {
		a.logger.Debug("Allocator::ResizeInPlace - span is not tracked by this allocator",
			slog.Int("Size", span.Size))
		return false
	}

	if !a.backing.ResizeInPlace(span, alignment, newSize) {
		return false
	}

	a.cache.RemoveAt(index)

	// The entry must reflect the post-resize length, not the length it was
	// tracked under before.
	resized := recycle.Span{Ptr: span.Ptr, Size: newSize}
	err := a.cache.Deposit(resized)
	if err != nil {
		// Removal above made room, so this path is unreachable with a span
		// cap. The span simply stops being tracked until its next Free.
		a.logger.Error("Allocator::ResizeInPlace - failed to re-home resized span",
			slog.Int("NewSize", newSize), slog.Any("error", err))
	} else if recycle.DebugMargin > 0 && newSize >= recycle.DebugMargin {
		recycle.WriteMagicValue(resized.Ptr, 0)
	}

	a.logger.Debug("Allocator::ResizeInPlace - resized span in place",
		slog.Int("OldSize", span.Size), slog.Int("NewSize", newSize))

	return true
}

// Free deposits a span into the cache so it can satisfy future allocations.
// If the cache cannot track the span, it is released directly to the backing
// allocator instead- the memory is never leaked, and Free never fails from
// the caller's perspective.
func (a *Allocator) Free(span recycle.Span, alignment uint) {
	if span.Ptr == nil {
		return
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	recycle.DebugValidate(a.cache)

	err := a.cache.Deposit(span)
	if err == nil {
		if recycle.DebugMargin > 0 && span.Size >= recycle.DebugMargin {
			recycle.WriteMagicValue(span.Ptr, 0)
		}

		a.logger.Debug("Allocator::Free - span retained for reuse",
			slog.Int("Size", span.Size))
		return
	}

	a.logger.Debug("Allocator::Free - cache cannot track span, releasing to backing allocator",
		slog.Int("Size", span.Size), slog.Any("error", err))

	a.backing.Free(span, alignment)
	a.memoryCallbacks.Free(span)
}

// Destroy releases every span still tracked by this allocator back to the
// backing allocator and empties the cache. Spans still marked used are
// assumed to no longer have a live consumer and are released as well, after
// being logged. Consumers must not hold spans from this allocator past
// Destroy.
//
// Teardown has no record of each span's original alignment class, so backing
// allocators must be able to free a span without it.
func (a *Allocator) Destroy() {
	a.logger.Debug("Allocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	recycle.DebugValidate(a.cache)

	a.cache.VisitAllSpans(func(span recycle.Span, used bool) {
		if used {
			a.logger.LogAttrs(context.Background(), slog.LevelError,
				"[UNRELEASED MEMORY] span still in use at allocator teardown",
				slog.Int("Size", span.Size))
		}
	})

	a.cache.Clear(func(span recycle.Span) {
		a.backing.Free(span, 1)
		a.memoryCallbacks.Free(span)
	})
}

// Validate performs internal consistency checks on the allocator's cache. These
// checks are expensive and intended for diagnostics.
func (a *Allocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.cache.Validate()
}

// HitCount returns the number of Allocate calls that were satisfied from the cache.
func (a *Allocator) HitCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.hitCount
}

// MissCount returns the number of Allocate calls that were delegated to the backing allocator.
func (a *Allocator) MissCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.missCount
}

// CalculateStatistics sums statistics for every span tracked by this allocator into the
// provided object.
func (a *Allocator) CalculateStatistics(stats *recycle.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.cache.AddDetailedStatistics(stats)
}

// BuildStatsString returns a JSON blob describing the allocator's cache and hit/miss
// counters, for diagnostic purposes.
func (a *Allocator) BuildStatsString() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	writer := jwriter.NewWriter()

	obj := writer.Object()
	obj.Name("Hits").Int(a.hitCount)
	obj.Name("Misses").Int(a.missCount)

	cacheObj := obj.Name("Cache").Object()
	a.cache.CacheJsonData(cacheObj)
	cacheObj.End()

	obj.End()

	return string(writer.Bytes())
}
