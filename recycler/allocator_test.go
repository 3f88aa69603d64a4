package recycler_test

import (
	"encoding/json"
	"sync"
	"testing"
	"unsafe"

	"github.com/memreuse/recycle"
	mock_recycle "github.com/memreuse/recycle/mocks"
	"github.com/memreuse/recycle/recycler"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// pointerFactory mints distinct pointers for mock backing allocators to hand
// out. The backing bytes are retained for the factory's lifetime.
type pointerFactory struct {
	buffers [][]byte
}

func (f *pointerFactory) ptr() unsafe.Pointer {
	buf := make([]byte, 1)
	f.buffers = append(f.buffers, buf)
	return unsafe.Pointer(&buf[0])
}

func TestCreateValidation(t *testing.T) {
	_, err := recycler.New(nil, recycler.CreateOptions{})
	require.Error(t, err)

	_, err = recycler.New(recycler.NewHeapAllocator(), recycler.CreateOptions{
		ReuseWindowFactor: -1,
	})
	require.Error(t, err)
}

func TestAllocateValidation(t *testing.T) {
	allocator, err := recycler.New(recycler.NewHeapAllocator(), recycler.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	_, err = allocator.Allocate(0, 1)
	require.Error(t, err)

	_, err = allocator.Allocate(100, 3)
	require.ErrorIs(t, err, recycle.PowerOfTwoError)
}

func TestAllocateRoundTripReusesSpan(t *testing.T) {
	backing := recycler.NewHeapAllocator()
	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	ptr, err := allocator.Allocate(10, 1)
	require.NoError(t, err)

	allocator.Free(recycle.Span{Ptr: ptr, Size: 10}, 1)

	reused, err := allocator.Allocate(10, 1)
	require.NoError(t, err)
	require.Equal(t, ptr, reused)

	require.Equal(t, 1, allocator.HitCount())
	require.Equal(t, 1, allocator.MissCount())
	require.NoError(t, allocator.Validate())
}

func TestAllocateMissDelegatesToBacking(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var f pointerFactory
	expected := f.ptr()

	backing := mock_recycle.NewMockAllocator(ctrl)
	backing.EXPECT().Allocate(100, uint(8)).Return(expected, nil)

	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)

	ptr, err := allocator.Allocate(100, 8)
	require.NoError(t, err)
	require.Equal(t, expected, ptr)
	require.Equal(t, 1, allocator.MissCount())

	// The span was never freed, so teardown has nothing to release
	allocator.Destroy()
}

func TestFreeFallsBackWhenCacheCannotTrack(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var f pointerFactory
	first := f.ptr()
	second := f.ptr()

	backing := mock_recycle.NewMockAllocator(ctrl)
	backing.EXPECT().Allocate(100, uint(1)).Return(first, nil)
	backing.EXPECT().Allocate(100, uint(1)).Return(second, nil)

	allocator, err := recycler.New(backing, recycler.CreateOptions{
		MaxTrackedSpans: 1,
	})
	require.NoError(t, err)

	firstPtr, err := allocator.Allocate(100, 1)
	require.NoError(t, err)
	secondPtr, err := allocator.Allocate(100, 1)
	require.NoError(t, err)

	allocator.Free(recycle.Span{Ptr: firstPtr, Size: 100}, 1)

	// The cache is at its cap, so this span goes straight back to the backing allocator
	backing.EXPECT().Free(recycle.Span{Ptr: secondPtr, Size: 100}, uint(1))
	allocator.Free(recycle.Span{Ptr: secondPtr, Size: 100}, 1)

	backing.EXPECT().Free(recycle.Span{Ptr: firstPtr, Size: 100}, uint(1))
	allocator.Destroy()
}

func TestResizeInPlaceUntrackedSpanFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var f pointerFactory

	backing := mock_recycle.NewMockAllocator(ctrl)

	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	// The backing allocator is never consulted for a span the cache does not track
	ok := allocator.ResizeInPlace(recycle.Span{Ptr: f.ptr(), Size: 10}, 1, 40)
	require.False(t, ok)
}

func TestResizeInPlaceBackingRefusalLeavesCacheUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var f pointerFactory
	ptr := f.ptr()
	span := recycle.Span{Ptr: ptr, Size: 10}

	backing := mock_recycle.NewMockAllocator(ctrl)
	backing.EXPECT().Allocate(10, uint(1)).Return(ptr, nil)

	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)

	allocated, err := allocator.Allocate(10, 1)
	require.NoError(t, err)
	allocator.Free(recycle.Span{Ptr: allocated, Size: 10}, 1)

	backing.EXPECT().ResizeInPlace(span, uint(1), 40).Return(false)
	ok := allocator.ResizeInPlace(span, 1, 40)
	require.False(t, ok)

	// The span is still tracked at its old size
	reused, err := allocator.Allocate(10, 1)
	require.NoError(t, err)
	require.Equal(t, ptr, reused)

	backing.EXPECT().Free(span, uint(1))
	allocator.Destroy()
}

func TestResizeInPlaceRehomesSpanAtNewSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var f pointerFactory
	ptr := f.ptr()
	other := f.ptr()

	backing := mock_recycle.NewMockAllocator(ctrl)
	backing.EXPECT().Allocate(10, uint(1)).Return(ptr, nil)

	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)

	allocated, err := allocator.Allocate(10, 1)
	require.NoError(t, err)
	allocator.Free(recycle.Span{Ptr: allocated, Size: 10}, 1)

	backing.EXPECT().ResizeInPlace(recycle.Span{Ptr: ptr, Size: 10}, uint(1), 40).Return(true)
	ok := allocator.ResizeInPlace(recycle.Span{Ptr: ptr, Size: 10}, 1, 40)
	require.True(t, ok)

	// The span is reachable at its new size...
	reused, err := allocator.Allocate(40, 1)
	require.NoError(t, err)
	require.Equal(t, ptr, reused)

	// ...and no longer present at its old size
	backing.EXPECT().Allocate(10, uint(1)).Return(other, nil)
	fresh, err := allocator.Allocate(10, 1)
	require.NoError(t, err)
	require.Equal(t, other, fresh)

	backing.EXPECT().Free(recycle.Span{Ptr: ptr, Size: 40}, uint(1))
	allocator.Destroy()
}

func TestExactFitReuse(t *testing.T) {
	backing := recycler.NewHeapAllocator()
	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	small, err := allocator.Allocate(100, 1)
	require.NoError(t, err)
	large, err := allocator.Allocate(300, 1)
	require.NoError(t, err)

	allocator.Free(recycle.Span{Ptr: small, Size: 100}, 1)
	allocator.Free(recycle.Span{Ptr: large, Size: 300}, 1)

	// First 100-byte request reuses the 100-byte span; the second falls outside
	// the 300-byte span's reuse window and allocates fresh instead of wasting it
	firstSmall, err := allocator.Allocate(100, 1)
	require.NoError(t, err)
	require.Equal(t, small, firstSmall)

	secondSmall, err := allocator.Allocate(100, 1)
	require.NoError(t, err)
	require.NotEqual(t, small, secondSmall)

	reusedLarge, err := allocator.Allocate(300, 1)
	require.NoError(t, err)
	require.Equal(t, large, reusedLarge)

	allocator.Free(recycle.Span{Ptr: firstSmall, Size: 100}, 1)
	allocator.Free(recycle.Span{Ptr: secondSmall, Size: 100}, 1)
	allocator.Free(recycle.Span{Ptr: reusedLarge, Size: 300}, 1)

	var stats recycle.DetailedStatistics
	stats.Clear()
	allocator.CalculateStatistics(&stats)

	require.Equal(t, recycle.DetailedStatistics{
		Statistics: recycle.Statistics{
			SpanCount:       3,
			UnusedSpanCount: 3,
			SpanBytes:       500,
			UnusedBytes:     500,
		},
		SpanSizeMin:   100,
		SpanSizeMax:   300,
		UnusedSizeMin: 100,
		UnusedSizeMax: 300,
	}, stats)
}

func TestMemoryCallbacksFireOnBackingTraffic(t *testing.T) {
	var allocated, freed int

	backing := recycler.NewHeapAllocator()
	allocator, err := recycler.New(backing, recycler.CreateOptions{
		MemoryCallbackOptions: &recycler.MemoryCallbackOptions{
			Allocate: func(allocator *recycler.Allocator, span recycle.Span, userData interface{}) {
				allocated++
			},
			Free: func(allocator *recycler.Allocator, span recycle.Span, userData interface{}) {
				freed++
			},
		},
	})
	require.NoError(t, err)

	ptr, err := allocator.Allocate(50, 1)
	require.NoError(t, err)
	require.Equal(t, 1, allocated)

	// Retained by the cache, so no backing free yet
	allocator.Free(recycle.Span{Ptr: ptr, Size: 50}, 1)
	require.Equal(t, 0, freed)

	// Reuse is invisible to the backing allocator
	_, err = allocator.Allocate(50, 1)
	require.NoError(t, err)
	require.Equal(t, 1, allocated)

	allocator.Destroy()
	require.Equal(t, 1, freed)
}

func TestBuildStatsString(t *testing.T) {
	allocator, err := recycler.New(recycler.NewHeapAllocator(), recycler.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	ptr, err := allocator.Allocate(64, 1)
	require.NoError(t, err)
	allocator.Free(recycle.Span{Ptr: ptr, Size: 64}, 1)

	stats := allocator.BuildStatsString()
	require.True(t, json.Valid([]byte(stats)))
	require.Contains(t, stats, "\"Misses\":1")
	require.Contains(t, stats, "\"TrackedSpans\":1")
}

func TestConcurrentAllocateFree(t *testing.T) {
	backing := recycler.NewHeapAllocator()
	allocator, err := recycler.New(backing, recycler.CreateOptions{})
	require.NoError(t, err)

	sizes := []int{64, 128, 256, 512}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := 0; i < 200; i++ {
				size := sizes[(worker+i)%len(sizes)]

				ptr, err := allocator.Allocate(size, 1)
				if err != nil {
					panic(err)
				}

				*(*byte)(ptr) = byte(i)
				allocator.Free(recycle.Span{Ptr: ptr, Size: size}, 1)
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, allocator.Validate())

	var stats recycle.DetailedStatistics
	stats.Clear()
	allocator.CalculateStatistics(&stats)
	require.Equal(t, stats.SpanCount, stats.UnusedSpanCount)

	allocator.Destroy()
	require.Equal(t, 0, backing.LiveAllocationCount())
}
