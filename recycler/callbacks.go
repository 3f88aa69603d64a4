package recycler

import "github.com/memreuse/recycle"

// AllocateSpanCallback is executed when the allocator acquires a new span from its backing
// allocator. Spans reused from the cache do not trigger it.
type AllocateSpanCallback func(
	allocator *Allocator,
	span recycle.Span,
	userData interface{},
)

// FreeSpanCallback is executed when the allocator releases a span to its backing allocator,
// either because the cache could not track it or during teardown. Spans retained by the cache
// do not trigger it.
type FreeSpanCallback func(
	allocator *Allocator,
	span recycle.Span,
	userData interface{},
)

// MemoryCallbackOptions is an optional set of callbacks that will be executed when real memory
// traffic reaches the backing allocator. Allocations & frees performed against this allocator
// do not map 1:1 with allocations & frees performed against the backing allocator, so these
// will not always be called.
type MemoryCallbackOptions struct {
	Allocate AllocateSpanCallback
	Free     FreeSpanCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(span recycle.Span) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, span, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(span recycle.Span) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, span, c.Callbacks.UserData)
	}
}
