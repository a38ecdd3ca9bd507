/*
 * MIT License
 *
 * Copyright (c) 2026 the beprox authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package shm implements the fixed-page backing store the session
// manager and its per-session dpool allocators are built on: one
// large region sliced into equal pages, a single mutex-guarded
// first-fit free-list of contiguous page runs, coalesced on free.
//
// Workers in this tree all live in one Go process, so "shared memory"
// here means one allocation shared by every goroutine rather than a
// cross-process mmap segment — the allocator discipline (fixed pages,
// first-fit, coalescing) is the contract callers depend on, and is
// reproduced exactly; only the transport (an mmap'd file) is not.
package shm

import (
	"errors"
	"sort"
	"sync"
)

// DefaultPageSize is the page granularity the region is sliced into.
const DefaultPageSize = 4096

var ErrOutOfMemory = errors.New("shm: region has no run of contiguous free pages large enough")

// run is a contiguous span of free pages, [start, start+length).
type run struct {
	start, length int
}

// Region is one fixed-size arena divided into PageSize pages.
type Region struct {
	mu       sync.Mutex
	buf      []byte
	pageSize int
	pages    int
	free     []run // sorted by start, no two entries adjacent or overlapping
}

// New allocates a region of pages pages, each pageSize bytes (DefaultPageSize
// if zero).
func New(pages int, pageSize int) *Region {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Region{
		buf:      make([]byte, pages*pageSize),
		pageSize: pageSize,
		pages:    pages,
		free:     []run{{start: 0, length: pages}},
	}
}

func (r *Region) PageSize() int { return r.pageSize }

// Pages is a handle to an allocated, contiguous span of pages.
type Pages struct {
	start, length int
}

// Len reports how many pages the handle covers.
func (p Pages) Len() int { return p.length }

// Bytes returns the backing storage for p. The slice is valid until Free.
func (r *Region) Bytes(p Pages) []byte {
	off := p.start * r.pageSize
	return r.buf[off : off+p.length*r.pageSize]
}

// Alloc reserves k contiguous pages via first-fit over the free-run
// list. Callers may store arbitrary data in the returned pages.
func (r *Region) Alloc(k int) (Pages, error) {
	if k <= 0 {
		return Pages{}, errors.New("shm: page count must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rn := range r.free {
		if rn.length < k {
			continue
		}
		p := Pages{start: rn.start, length: k}
		if rn.length == k {
			r.free = append(r.free[:i], r.free[i+1:]...)
		} else {
			r.free[i] = run{start: rn.start + k, length: rn.length - k}
		}
		return p, nil
	}
	return Pages{}, ErrOutOfMemory
}

// Free returns p's pages to the free-list, coalescing with any
// immediately adjacent free run.
func (r *Region) Free(p Pages) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.free = append(r.free, run{start: p.start, length: p.length})
	sort.Slice(r.free, func(i, j int) bool { return r.free[i].start < r.free[j].start })

	merged := r.free[:1]
	for _, rn := range r.free[1:] {
		last := &merged[len(merged)-1]
		if last.start+last.length == rn.start {
			last.length += rn.length
		} else {
			merged = append(merged, rn)
		}
	}
	r.free = merged
}

// FreePageCount returns the total number of currently unallocated pages.
func (r *Region) FreePageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rn := range r.free {
		n += rn.length
	}
	return n
}

// TotalPages returns the region's fixed page count.
func (r *Region) TotalPages() int { return r.pages }
