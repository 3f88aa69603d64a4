package recycle

import "unsafe"

// Span is a contiguous region of memory identified by its starting address
// and its length in bytes. Two Spans are the same span when their Ptr values
// are equal- Size is descriptive, not identifying.
type Span struct {
	Ptr  unsafe.Pointer
	Size int
}

// Allocator is the three-operation allocator contract shared by backing
// allocators and the recycler that sits in front of them. Because the
// recycler implements this interface itself, it can be dropped in anywhere
// an Allocator is accepted, including in front of another recycler.
type Allocator interface {
	// Allocate returns a pointer to at least size bytes of memory aligned to
	// the provided alignment, or an error if the memory cannot be acquired.
	// The alignment must be a power of two.
	Allocate(size int, alignment uint) (unsafe.Pointer, error)
	// ResizeInPlace attempts to change the length of the provided span to
	// newSize without moving it. It returns false if the span cannot be
	// resized where it lives, in which case the caller is expected to fall
	// back to Allocate+copy+Free. ResizeInPlace must never relocate memory.
	ResizeInPlace(span Span, alignment uint, newSize int) bool
	// Free releases a span previously returned by Allocate. Free never fails.
	Free(span Span, alignment uint)
}
