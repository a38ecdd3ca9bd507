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

// Package dpool implements the per-session sub-allocator:
// a chain of shm-backed chunks, each holding its own
// free-list of variable-size blocks, merged on free and released back
// to shm once empty — except the chunk the pool was created with, which
// stays for the pool's lifetime.
package dpool

import (
	"sort"
	"sync"

	"github.com/cm4all/beprox/internal/shm"
)

// DefragmentThreshold is how many freed allocations accumulate before a
// dpool is considered fragmented enough to rebuild. It is a constant
// and the same for every pool; the counter increments on Free, not on
// Alloc.
const DefragmentThreshold = 256

type block struct {
	offset, length int
}

type chunk struct {
	pages shm.Pages
	bytes []byte
	free  []block
}

func (c *chunk) fullyFree() bool {
	return len(c.free) == 1 && c.free[0].offset == 0 && c.free[0].length == len(c.bytes)
}

// Allocation identifies one block handed out by Alloc.
type Allocation struct {
	c      *chunk
	offset int
	length int
}

// Bytes returns the storage for this allocation. Valid until Free.
func (a *Allocation) Bytes() []byte { return a.c.bytes[a.offset : a.offset+a.length] }

// Dpool sub-allocates variable-size blocks out of one or more shm
// chunks.
type Dpool struct {
	mu         sync.Mutex
	region     *shm.Region
	pageSize   int
	chunks     []*chunk
	freedCount int
}

// New allocates a single head chunk of one page and returns a ready
// Dpool.
func New(region *shm.Region) (*Dpool, error) {
	d := &Dpool{region: region, pageSize: region.PageSize()}
	if err := d.addChunk(1); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dpool) addChunk(pages int) error {
	p, err := d.region.Alloc(pages)
	if err != nil {
		return err
	}
	b := d.region.Bytes(p)
	d.chunks = append(d.chunks, &chunk{pages: p, bytes: b, free: []block{{0, len(b)}}})
	return nil
}

func pagesFor(size, pageSize int) int {
	n := (size + pageSize - 1) / pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// Alloc hunts the current chunks for a fitting free block; if none fits,
// a fresh chunk sized for size is requested from shm.
func (d *Dpool) Alloc(size int) (*Allocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a := d.allocFromChunks(size); a != nil {
		return a, nil
	}

	if err := d.addChunk(pagesFor(size, d.pageSize)); err != nil {
		return nil, err
	}
	a := d.allocFromChunks(size)
	return a, nil // newly added chunk is guaranteed to fit size
}

func (d *Dpool) allocFromChunks(size int) *Allocation {
	for _, c := range d.chunks {
		for i, blk := range c.free {
			if blk.length < size {
				continue
			}
			a := &Allocation{c: c, offset: blk.offset, length: size}
			if blk.length == size {
				c.free = append(c.free[:i], c.free[i+1:]...)
			} else {
				c.free[i] = block{offset: blk.offset + size, length: blk.length - size}
			}
			return a
		}
	}
	return nil
}

// Free returns a's block to its chunk's free-list, merging with
// neighbours, and releases the chunk back to shm if it is now entirely
// free and is not the head chunk.
func (d *Dpool) Free(a *Allocation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := a.c
	c.free = append(c.free, block{offset: a.offset, length: a.length})
	sort.Slice(c.free, func(i, j int) bool { return c.free[i].offset < c.free[j].offset })

	merged := c.free[:1]
	for _, blk := range c.free[1:] {
		last := &merged[len(merged)-1]
		if last.offset+last.length == blk.offset {
			last.length += blk.length
		} else {
			merged = append(merged, blk)
		}
	}
	c.free = merged
	d.freedCount++

	if c != d.chunks[0] && c.fullyFree() {
		d.region.Free(c.pages)
		for i, cc := range d.chunks {
			if cc == c {
				d.chunks = append(d.chunks[:i], d.chunks[i+1:]...)
				break
			}
		}
	}
}

// Fragmented reports whether enough allocations have been freed that a
// rebuild (session-level defragment) is worthwhile.
func (d *Dpool) Fragmented() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freedCount > DefragmentThreshold
}

// Close releases every chunk, including the head chunk, back to shm.
func (d *Dpool) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chunks {
		d.region.Free(c.pages)
	}
	d.chunks = nil
}

// Size returns the total bytes currently backing this dpool across all
// of its chunks, used by the session manager's purge score ("large
// dpool").
func (d *Dpool) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.chunks {
		n += len(c.bytes)
	}
	return n
}
