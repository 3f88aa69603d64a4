package recycler

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/memreuse/recycle"
)

type heapBuffer struct {
	raw    []byte
	offset int
}

// HeapAllocator is a backing allocator that acquires memory from the Go heap.
// Every live allocation is retained in a pointer-keyed map so the garbage
// collector cannot reclaim memory that has been lent out through an
// unsafe.Pointer. Alignment requests are honored by over-allocating and
// offsetting into the buffer.
//
// ResizeInPlace succeeds whenever the retained buffer already has enough
// capacity past the aligned offset, which makes shrinks free and grows
// possible up to the original over-allocation.
type HeapAllocator struct {
	mutex   sync.Mutex
	buffers *swiss.Map[uintptr, heapBuffer]
}

var _ recycle.Allocator = &HeapAllocator{}

// NewHeapAllocator creates an empty HeapAllocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{
		buffers: swiss.NewMap[uintptr, heapBuffer](42),
	}
}

// Allocate returns a pointer to size bytes of zeroed memory aligned to the
// provided alignment, which must be a power of two. Pass 0 or 1 when any
// alignment will do.
func (h *HeapAllocator) Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, errors.Errorf("allocation size must be positive, but was %d", size)
	}
	if alignment == 0 {
		alignment = 1
	}
	if err := recycle.CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}

	raw := make([]byte, size+int(alignment)-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := recycle.AlignUp(int(addr), alignment) - int(addr)
	ptr := unsafe.Pointer(&raw[offset])

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.buffers.Put(uintptr(ptr), heapBuffer{raw: raw, offset: offset})

	return ptr, nil
}

// ResizeInPlace reports whether the span's retained buffer can hold newSize
// bytes without moving. The buffer is never reallocated.
func (h *HeapAllocator) ResizeInPlace(span recycle.Span, alignment uint, newSize int) bool {
	if newSize <= 0 {
		return false
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	buffer, ok := h.buffers.Get(uintptr(span.Ptr))
	if !ok {
		return false
	}

	return newSize <= len(buffer.raw)-buffer.offset
}

// Free drops the retained buffer for the span, returning it to the garbage
// collector. Freeing a span this allocator does not know is a no-op.
func (h *HeapAllocator) Free(span recycle.Span, alignment uint) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.buffers.Delete(uintptr(span.Ptr))
}

// LiveAllocationCount returns the number of spans currently lent out by this allocator.
func (h *HeapAllocator) LiveAllocationCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.buffers.Count()
}
