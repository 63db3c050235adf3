// Package pool implements the engine's fixed-size-class slab allocator
// (spec §4.1). Go's runtime already manages memory safely, so this layer
// does not back raw bytes the way the original pool.c does; instead it
// reproduces the same size-class/page/freelist bookkeeping structure over
// Go-allocated pages, giving the rest of the engine (and its tests) the
// same allocation-accounting contract the spec describes: pool and page
// sizing, per-class freelists, and a page-origin lookup.
package pool

import "sync"

const (
	// PoolSize is the size of one backing pool (spec §4.1: "1 MiB pools").
	PoolSize = 1 << 20
	// PageSize subdivides a pool (spec §4.1: "4 KiB pages").
	PageSize = 4096
	// MaxCellSize is the largest size class served by the allocator;
	// requests above this fall back to a direct allocation (spec §4.1).
	MaxCellSize = 256
	// classStep is the size-class granularity (spec §4.1: "8B steps").
	classStep = 8
	numClasses = MaxCellSize/classStep + 1
)

// page is one 4 KiB slab subdivided into fixed-size cells of a single
// size class, with its own freelist (spec §4.1 "freelist per page").
type page struct {
	class    int
	cellSize int
	free     []unsafePtr // addresses of free cells within this page
	used     int
	buf      []byte // backing storage
}

// unsafePtr is an opaque cell handle: an index into its owning page's buf.
// Using an index rather than an unsafe.Pointer keeps the allocator free
// of unsafe code while preserving the page/page-hash bookkeeping shape.
type unsafePtr int

// Block is a handle to an allocated cell, returned by Alloc and consumed
// by Free. It is opaque to callers besides the allocator itself.
type Block struct {
	page *page
	off  unsafePtr
	data []byte
}

// Bytes exposes the cell's backing storage.
func (b *Block) Bytes() []byte { return b.data }

// Allocator is a per-thread allocation context (spec §4.1, §5: "each
// thread owns its own pool allocator context"). The zero value is not
// usable; use NewAllocator.
type Allocator struct {
	mu         sync.Mutex
	pages      [numClasses][]*page // pages with free cells, by size class
	fullPages  [numClasses][]*page
	pageHash   map[*page]struct{} // page-origin membership test
	bigBlocks  map[*Block]struct{}
}

func NewAllocator() *Allocator {
	return &Allocator{
		pageHash:  make(map[*page]struct{}),
		bigBlocks: make(map[*Block]struct{}),
	}
}

func classFor(size int) int {
	if size <= 0 {
		size = 1
	}
	c := (size + classStep - 1) / classStep
	if c >= numClasses {
		return -1
	}
	return c
}

func cellSizeOf(class int) int { return class * classStep }

// Alloc returns a zeroed cell of at least size bytes (spec §4.1
// "pool_alloc"). Requests over MaxCellSize bypass the slab pages and are
// served as a standalone big block, still tracked for Recycle/FreeAll.
func (a *Allocator) Alloc(size int) *Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	class := classFor(size)
	if class < 0 {
		blk := &Block{data: make([]byte, size)}
		a.bigBlocks[blk] = struct{}{}
		return blk
	}

	list := a.pages[class]
	for i := len(list) - 1; i >= 0; i-- {
		p := list[i]
		if len(p.free) > 0 {
			off := p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			p.used++
			cellSize := p.cellSize
			blk := &Block{page: p, off: off, data: p.buf[int(off)*cellSize : int(off)*cellSize+cellSize]}
			if len(p.free) == 0 {
				a.pages[class] = append(list[:i], list[i+1:]...)
				a.fullPages[class] = append(a.fullPages[class], p)
			}
			return blk
		}
	}

	p := a.newPage(class)
	a.pages[class] = append(a.pages[class], p)
	off := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.used++
	cellSize := p.cellSize
	return &Block{page: p, off: off, data: p.buf[int(off)*cellSize : int(off)*cellSize+cellSize]}
}

func (a *Allocator) newPage(class int) *page {
	cellSize := cellSizeOf(class)
	n := PageSize / cellSize
	p := &page{class: class, cellSize: cellSize, buf: make([]byte, PageSize), free: make([]unsafePtr, n)}
	for i := 0; i < n; i++ {
		p.free[i] = unsafePtr(i)
	}
	a.pageHash[p] = struct{}{}
	return p
}

// Free releases a cell back to its page's freelist, moving the page out
// of the full-pages table if it was there (spec §4.1 "pool_free").
func (a *Allocator) Free(blk *Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if blk.page == nil {
		delete(a.bigBlocks, blk)
		return
	}
	p := blk.page
	p.free = append(p.free, blk.off)
	p.used--
	if p.used == len(p.buf)/p.cellSize-1 {
		// page left the full table, rejoin the free-page list
		full := a.fullPages[p.class]
		for i, fp := range full {
			if fp == p {
				a.fullPages[p.class] = append(full[:i], full[i+1:]...)
				break
			}
		}
		a.pages[p.class] = append(a.pages[p.class], p)
	}
}

// Owns reports whether blk was allocated from this context, mirroring the
// original's page-pointer hash used to validate frees (spec §4.1).
func (a *Allocator) Owns(blk *Block) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if blk.page == nil {
		_, ok := a.bigBlocks[blk]
		return ok
	}
	_, ok := a.pageHash[blk.page]
	return ok
}

// FreeAll tears down the entire context, used when a thread exits (spec
// §5 "thread exit releases its pool allocator").
func (a *Allocator) FreeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for c := range a.pages {
		a.pages[c] = nil
		a.fullPages[c] = nil
	}
	a.pageHash = make(map[*page]struct{})
	a.bigBlocks = make(map[*Block]struct{})
}
