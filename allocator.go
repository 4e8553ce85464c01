package hephaestus

import (
	"fmt"
)

// Allocation is a range within a LinearAllocator.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// End returns the first offset past the allocation.
func (a *Allocation) End() uint64 {
	return a.Offset + a.Size
}

// LinearAllocator sub-allocates a block of Size bytes first-fit. Allocations
// are kept sorted by offset.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

func NewLinearAllocator(size uint64) *LinearAllocator {
	return &LinearAllocator{Size: size}
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// Allocate returns the first gap that fits size bytes at the given
// alignment, or nil if there is none.
func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}

	var start uint64
	for i, c := range p.allocs {
		if c.Offset >= start && c.Offset-start >= size {
			return p.insert(i, start, size)
		}
		start = makeAlignUp(c.End(), align)
	}
	if start <= p.Size && p.Size-start >= size {
		return p.insert(len(p.allocs), start, size)
	}
	return nil
}

func (p *LinearAllocator) insert(i int, offset, size uint64) *Allocation {
	na := &Allocation{Offset: offset, Size: size}
	p.allocs = append(p.allocs, nil)
	copy(p.allocs[i+1:], p.allocs[i:])
	p.allocs[i] = na
	return na
}

// Free releases fa. It reports false if fa was not allocated here.
func (p *LinearAllocator) Free(fa *Allocation) bool {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return true
		}
	}
	return false
}

// Used returns the number of allocated bytes, not counting alignment padding.
func (p *LinearAllocator) Used() uint64 {
	var n uint64
	for _, a := range p.allocs {
		n += a.Size
	}
	return n
}

// Len returns the number of live allocations.
func (p *LinearAllocator) Len() int {
	return len(p.allocs)
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
