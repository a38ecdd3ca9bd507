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

package istream

import (
	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// Substitution is a handle to a pending or settled replacement range
// returned by ReplaceIstream.Add. Its start is fixed for the lifetime of
// the handle; its end may move forward via Extend until Settle freezes
// it.
type Substitution struct {
	start, end int64
	data       []byte
	emitted    int
	settled    bool
}

// ReplaceIstream buffers its upstream into a growing buffer and emits the
// concatenation of the original bytes and any registered substitutions,
// each substitution replacing a [start, end) range of the original.
// Substitutions must be added in ascending, non-overlapping start order;
// Extend may only move a substitution's end forward, and only before it
// is settled.
type ReplaceIstream struct {
	Filter

	buf         []byte
	upstreamEOF bool
	finished    bool
	subs        []*Substitution
	emittedTo   int64
}

// NewReplace wraps upstream, buffering it so that substitutions can be
// registered against byte ranges of its content.
func NewReplace(upstream Istream) *ReplaceIstream {
	r := &ReplaceIstream{}
	r.Init(upstream, r)
	return r
}

func (r *ReplaceIstream) ReceiveMask() FdType { return FdNone }

func (r *ReplaceIstream) Read() { r.Upstream.Read() }

func (r *ReplaceIstream) OnData(p []byte) int {
	r.buf = append(r.buf, p...)
	r.tryEmit()
	return len(p)
}

func (r *ReplaceIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return DirectBlocking, 0, nil
}

func (r *ReplaceIstream) OnEof() {
	r.upstreamEOF = true
	r.tryEmit()
}

func (r *ReplaceIstream) OnError(err error) { r.DestroyError(err) }

// Add registers a substitution of the original [start, end) range with
// data. start must be >= the end of the previously added substitution
// (ascending, non-overlapping order) and >= whatever has already been
// emitted. Returns an error, rather than panicking or silently
// misordering output, if the caller violates either constraint.
func (r *ReplaceIstream) Add(start, end int64, data []byte) (*Substitution, error) {
	if r.finished {
		return nil, bperr.New(bperr.Protocol, "replace: Add after Finish", nil)
	}
	if start > end {
		return nil, bperr.New(bperr.Protocol, "replace: substitution start after end", nil)
	}
	if start < r.emittedTo {
		return nil, bperr.New(bperr.Protocol, "replace: substitution starts before already-emitted data", nil)
	}
	if len(r.subs) > 0 {
		last := r.subs[len(r.subs)-1]
		if start < last.end {
			return nil, bperr.New(bperr.Protocol, "replace: substitutions must be added in ascending, non-overlapping order", nil)
		}
	}

	sub := &Substitution{start: start, end: end, data: data}
	r.subs = append(r.subs, sub)
	r.tryEmit()
	return sub, nil
}

// Extend moves sub's end forward to newEnd. The original code this is
// modeled on trusted the caller to remember sub's start and never move
// end backward; this validates both: newEnd must not precede the current
// end, and sub must not already be settled.
func (r *ReplaceIstream) Extend(sub *Substitution, newEnd int64) error {
	if sub.settled {
		return bperr.New(bperr.Protocol, "replace: Extend after Settle", nil)
	}
	if newEnd < sub.end {
		return bperr.New(bperr.Protocol, "replace: Extend end must be monotone non-decreasing", nil)
	}
	sub.end = newEnd
	return nil
}

// Settle freezes sub's end and makes its data eligible for emission once
// it is the earliest pending substitution.
func (r *ReplaceIstream) Settle(sub *Substitution) error {
	if sub.settled {
		return bperr.New(bperr.Protocol, "replace: substitution already settled", nil)
	}
	sub.settled = true
	r.tryEmit()
	return nil
}

// Finish forbids any further Add calls. It does not implicitly settle
// substitutions still pending; callers must Settle each one themselves.
func (r *ReplaceIstream) Finish() {
	r.finished = true
	r.tryEmit()
}

// tryEmit pushes as much of the buffered original plus settled
// substitution data downstream as is currently resolvable, stopping at
// the first unsettled substitution or when downstream applies
// backpressure.
func (r *ReplaceIstream) tryEmit() {
	for {
		if len(r.subs) > 0 {
			sub := r.subs[0]

			if r.emittedTo < sub.start {
				limit := sub.start
				if int64(len(r.buf)) < limit {
					limit = int64(len(r.buf))
				}
				if limit <= r.emittedTo {
					return // waiting on more upstream data
				}
				n := r.Handler().OnData(r.buf[r.emittedTo:limit])
				r.emittedTo += int64(n)
				if r.emittedTo < limit {
					return // downstream blocked
				}
				continue
			}

			if !sub.settled {
				return // boundary reached but substitution not resolved yet
			}

			if sub.emitted < len(sub.data) {
				n := r.Handler().OnData(sub.data[sub.emitted:])
				sub.emitted += n
				if sub.emitted < len(sub.data) {
					return // downstream blocked
				}
			}

			r.emittedTo = sub.end
			r.subs = r.subs[1:]
			continue
		}

		if int64(len(r.buf)) > r.emittedTo {
			n := r.Handler().OnData(r.buf[r.emittedTo:])
			r.emittedTo += int64(n)
			if r.emittedTo < int64(len(r.buf)) {
				return // downstream blocked
			}
			continue
		}

		if r.upstreamEOF {
			r.DestroyEof()
		}
		return
	}
}

func (r *ReplaceIstream) GetAvailable(partial bool) int64 { return -1 }

func (r *ReplaceIstream) Skip(n int64) int64 { return -1 }

// FillBucketList returns the buffered prefix up to the first unresolved
// substitution's start boundary and sets HasMore, per the zero-copy
// probe contract: a pending substitution's content cannot be offered
// until it is settled.
func (r *ReplaceIstream) FillBucketList(list *BucketList) {
	pos := r.emittedTo

	for _, sub := range r.subs {
		if pos < sub.start {
			limit := sub.start
			if int64(len(r.buf)) < limit {
				limit = int64(len(r.buf))
			}
			if limit > pos {
				list.PushBuffer(r.buf[pos:limit])
			}
		}
		if !sub.settled {
			list.SetMore()
			return
		}
		if sub.emitted < len(sub.data) {
			list.PushBuffer(sub.data[sub.emitted:])
		}
		pos = sub.end
	}

	if int64(len(r.buf)) > pos {
		list.PushBuffer(r.buf[pos:])
	}
	if !r.upstreamEOF {
		list.SetMore()
	}
}

// ConsumeBucketList mirrors tryEmit's traversal order without invoking
// Handler, since the caller has already taken the bytes FillBucketList
// reported.
func (r *ReplaceIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	remaining := n

	for remaining > 0 {
		if len(r.subs) > 0 {
			sub := r.subs[0]

			if r.emittedTo < sub.start {
				limit := sub.start
				if int64(len(r.buf)) < limit {
					limit = int64(len(r.buf))
				}
				avail := limit - r.emittedTo
				if avail <= 0 {
					break
				}
				take := avail
				if int64(remaining) < take {
					take = int64(remaining)
				}
				r.emittedTo += take
				remaining -= int(take)
				continue
			}

			if !sub.settled {
				break
			}

			avail := len(sub.data) - sub.emitted
			if avail > 0 {
				take := avail
				if remaining < take {
					take = remaining
				}
				sub.emitted += take
				remaining -= take
				if sub.emitted < len(sub.data) {
					continue
				}
			}

			r.emittedTo = sub.end
			r.subs = r.subs[1:]
			continue
		}

		avail := int64(len(r.buf)) - r.emittedTo
		if avail <= 0 {
			break
		}
		take := avail
		if int64(remaining) < take {
			take = int64(remaining)
		}
		r.emittedTo += take
		remaining -= int(take)
	}

	consumed = n - remaining
	eof = r.upstreamEOF && len(r.subs) == 0 && r.emittedTo >= int64(len(r.buf))
	return consumed, eof
}

func (r *ReplaceIstream) AsFd() (uintptr, bool) { return 0, false }

func (r *ReplaceIstream) DirectMask() FdType { return FdNone }
