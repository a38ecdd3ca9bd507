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

// Package istream implements the demand-driven, zero-copy byte stream
// abstraction used throughout the request execution pipeline: a single
// upstream source feeds exactly one downstream Handler, filters compose by
// wrapping one Istream inside another, and termination is always exactly
// one of OnEof, OnError, or an explicit Close.
package istream

import (
	"context"
)

// DirectResult is the outcome of a direct (splice-style) fd hand-off
// attempted through Handler.OnDirect.
type DirectResult int

const (
	// DirectOK means some bytes were moved via splice; the caller may be
	// called again for more.
	DirectOK DirectResult = iota
	// DirectEnd means upstream reached EOF during the direct transfer.
	DirectEnd
	// DirectClosed means the downstream handler closed the istream while
	// servicing the direct transfer.
	DirectClosed
	// DirectBlocking means the transfer would block; the caller should
	// retry once the fd is writable/readable again.
	DirectBlocking
	// DirectErrno means the transfer failed with an OS-level error.
	DirectErrno
)

func (r DirectResult) String() string {
	switch r {
	case DirectOK:
		return "OK"
	case DirectEnd:
		return "END"
	case DirectClosed:
		return "CLOSED"
	case DirectBlocking:
		return "BLOCKING"
	case DirectErrno:
		return "ERRNO"
	default:
		return "UNKNOWN"
	}
}

// FdType is a bitmask of file descriptor kinds a Handler is prepared to
// receive directly via OnDirect, instead of having the bytes copied
// through OnData. A filter either forwards this mask unchanged
// (passthrough) or clears it (it must see every byte).
type FdType uint32

const (
	FdNone    FdType = 0
	FdPipe    FdType = 1 << 0
	FdSocket  FdType = 1 << 1
	FdFile    FdType = 1 << 2
	FdCharDev FdType = 1 << 3
)

// Has reports whether mask advertises support for t.
func (m FdType) Has(t FdType) bool { return m&t != 0 }

// Handler is implemented by whatever is downstream of an Istream: it
// receives data, takes direct fd hand-offs, and is notified of exactly
// one terminal event.
type Handler interface {
	// ReceiveMask returns the FdType bitmask this handler is prepared to
	// take via OnDirect. An upstream source checks this before attempting
	// a direct hand-off instead of copying through OnData.
	ReceiveMask() FdType

	// OnData delivers p; the return value is how many leading bytes were
	// consumed. Returning less than len(p) means the handler is blocked and
	// upstream must retain the remainder for the next delivery.
	OnData(p []byte) (consumed int)

	// OnDirect hands off fd for a zero-copy transfer. offset is -1 when
	// the fd is not seekable. thenEOF tells the handler that upstream has
	// no more data after maxLength bytes.
	OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error)

	// OnEof is called exactly once, iff the stream ends successfully and
	// was not explicitly Closed.
	OnEof()

	// OnError is called exactly once, iff the stream ends with err and
	// was not explicitly Closed.
	OnError(err error)
}

// BucketKind distinguishes an in-memory buffer bucket from a placeholder
// for a segment that can only be delivered via splice.
type BucketKind int

const (
	BucketBuffer BucketKind = iota
	BucketNonBuffer
)

// Bucket is one entry of a BucketList: either a borrowed view into an
// istream's internal buffer, or a marker that a non-buffer (splice-only)
// segment follows.
type Bucket struct {
	Kind BucketKind
	Data []byte // valid iff Kind == BucketBuffer
}

// BucketList is the zero-copy probe result of FillBucketList: an ordered
// list of buckets the istream could deliver right now without actually
// consuming from upstream, plus flags describing what comes after the
// listed buckets.
//
// Buckets are borrowed: the memory they point to remains owned by the
// istream until ConsumeBucketList commits to having taken it.
type BucketList struct {
	buckets     []Bucket
	hasMore     bool
	hasNonBuf   bool
	pushMore    bool
	fallback    bool
}

// NewBucketList returns an empty list ready to be filled.
func NewBucketList() *BucketList {
	return &BucketList{}
}

// PushBuffer appends an in-memory bucket. Empty slices are ignored.
func (l *BucketList) PushBuffer(p []byte) {
	if len(p) == 0 {
		return
	}
	l.buckets = append(l.buckets, Bucket{Kind: BucketBuffer, Data: p})
}

// PushNonBuffer appends a marker that a splice-only segment follows and
// sets HasNonBuffer.
func (l *BucketList) PushNonBuffer() {
	l.buckets = append(l.buckets, Bucket{Kind: BucketNonBuffer})
	l.hasNonBuf = true
}

// SetMore marks that more data may arrive after what is currently listed.
func (l *BucketList) SetMore() { l.hasMore = true }

// SetPushMore marks that the caller explicitly asked for buckets beyond
// what a first probe would normally return (used by filters that must
// look further ahead, e.g. Replace resolving a pending substitution).
func (l *BucketList) SetPushMore() { l.pushMore = true }

// SetFallback marks that the list was produced by a generic fallback path
// (e.g. wrapping GetAvailable/Skip) rather than true zero-copy buffers.
func (l *BucketList) SetFallback() { l.fallback = true }

func (l *BucketList) HasMore() bool      { return l.hasMore }
func (l *BucketList) HasNonBuffer() bool { return l.hasNonBuf }
func (l *BucketList) PushMore() bool     { return l.pushMore }
func (l *BucketList) Fallback() bool     { return l.fallback }
func (l *BucketList) Buckets() []Bucket  { return l.buckets }

// IsEmpty reports whether the list has no buckets and no HasMore —
// precisely the condition under which upstream is at EOF.
func (l *BucketList) IsEmpty() bool {
	return len(l.buckets) == 0 && !l.hasMore
}

// TotalBufferSize returns the sum of all in-memory bucket lengths,
// stopping at (not counting) the first non-buffer marker.
func (l *BucketList) TotalBufferSize() int {
	n := 0
	for _, b := range l.buckets {
		if b.Kind == BucketNonBuffer {
			break
		}
		n += len(b.Data)
	}
	return n
}

// Istream is the demand-driven byte stream abstraction. A value is always
// bound to exactly one downstream Handler via SetHandler before the first
// Read.
type Istream interface {
	// SetHandler attaches the downstream handler. Must be called before
	// Read.
	SetHandler(h Handler)

	// Read requests more data. May invoke Handler.OnData/OnDirect zero or
	// more times, may destroy the stream (calling OnEof/OnError), and may
	// return having made no progress (the handler is expected to wait for
	// a future event-loop callback).
	Read()

	// GetAvailable returns the known remaining length, or -1 if unknown.
	// With partial=true, implementations may return a lower bound instead
	// of -1.
	GetAvailable(partial bool) int64

	// Skip discards up to n bytes without delivering them. Returns the
	// number of bytes actually skipped, or -1 if unsupported.
	Skip(n int64) int64

	// FillBucketList appends zero-copy buffer references to list. It
	// never consumes from upstream.
	FillBucketList(list *BucketList)

	// ConsumeBucketList advances past the first n bytes previously
	// reported via FillBucketList, equivalent to OnData having accepted
	// them. eof is true iff this consumed the last byte and upstream is
	// now at EOF.
	ConsumeBucketList(n int) (consumed int, eof bool)

	// AsFd surrenders a backing file descriptor to the caller if the
	// source is fd-backed and ok to hand off whole, destroying the
	// istream. ok is false if unsupported.
	AsFd() (fd uintptr, ok bool)

	// DirectMask returns the FdType bitmask this istream can deliver via
	// OnDirect to its own upstream, used by filters deciding whether to
	// pass the mask through or clear it.
	DirectMask() FdType

	// Close destroys the istream without delivering OnEof or OnError.
	Close()
}

// ctxKey is used to thread a context.Context alongside an istream pipeline
// for cancellation-aware sources (e.g. an HTTP client body).
type ctxKey struct{}

// WithIstream returns a context carrying s, used by sources that need to
// observe cancellation independent of their Handler's Close call.
func WithIstream(ctx context.Context, s Istream) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}
