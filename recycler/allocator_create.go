package recycler

import (
	"github.com/cockroachdb/errors"
	"github.com/memreuse/recycle"
	"github.com/memreuse/recycle/internal/utils"
	"github.com/memreuse/recycle/spancache"
	"golang.org/x/exp/slog"
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// Logger is the structured logger the allocator traces operations to. When nil,
	// slog.Default() is used.
	Logger *slog.Logger

	// ReuseWindowFactor bounds how oversized a reused span may be relative to the requested
	// size- a request for n bytes will only ever be satisfied by a cached span of at most
	// n*ReuseWindowFactor bytes. Raising it improves hit rate at the cost of internal
	// fragmentation. When 0, spancache.DefaultReuseFactor is used.
	ReuseWindowFactor int

	// MaxTrackedSpans caps how many spans the allocator's cache will track, or 0 for no cap.
	// Frees beyond the cap release memory directly to the backing allocator instead of
	// retaining it.
	MaxTrackedSpans int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when real
	// memory traffic reaches the backing allocator
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates an Allocator that retains spans freed through it and reuses them for future
// allocations before falling back to the provided backing allocator. The backing allocator is
// not owned by the new Allocator and must outlive it.
func New(backing recycle.Allocator, options CreateOptions) (*Allocator, error) {
	if backing == nil {
		return nil, errors.New("attempted to create a recycling allocator with no backing allocator")
	}
	if options.ReuseWindowFactor < 0 {
		return nil, errors.Errorf("ReuseWindowFactor must be non-negative, but was %d", options.ReuseWindowFactor)
	}

	reuseFactor := options.ReuseWindowFactor
	if reuseFactor == 0 {
		reuseFactor = spancache.DefaultReuseFactor
	}

	cache, err := spancache.New(reuseFactor, options.MaxTrackedSpans)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0

	allocator := &Allocator{
		mutex:   utils.OptionalMutex{UseMutex: useMutex},
		logger:  logger,
		backing: backing,
		cache:   cache,
	}
	allocator.memoryCallbacks = memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Allocator: allocator,
	}

	return allocator, nil
}
