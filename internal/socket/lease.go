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

package socket

// Pool is implemented by whatever keeps idle backend connections around
// for reuse (e.g. a per-origin HTTP/1 connection pool). Put returns a
// socket to the pool for a future Get; Remove drops it for good.
type Pool interface {
	Put(s *FilteredSocket)
	Remove(s *FilteredSocket)
}

// Lease wraps a FilteredSocket borrowed from a Pool. On Release, the
// socket is either returned to the pool (reuse=true) or dropped
// (reuse=false) — but it is never itself closed by Release; closing on
// a non-reuse release is the pool's job, since only the pool knows
// whether the connection is still healthy enough to keep open for
// diagnostics or must be torn down immediately.
type Lease struct {
	Socket *FilteredSocket
	pool   Pool

	released bool
}

// NewLease wraps s, borrowed from pool.
func NewLease(s *FilteredSocket, pool Pool) *Lease {
	return &Lease{Socket: s, pool: pool}
}

// Release gives up the lease exactly once. Calling it again is a no-op.
func (l *Lease) Release(reuse bool) {
	if l.released {
		return
	}
	l.released = true

	if reuse {
		l.pool.Put(l.Socket)
	} else {
		l.pool.Remove(l.Socket)
	}
}

// Released reports whether Release has already been called.
func (l *Lease) Released() bool { return l.released }
