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

// LengthIstream enforces that upstream delivers exactly length bytes: an
// error if more arrives, an error if upstream reaches EOF early.
type LengthIstream struct {
	Filter
	remaining int64
}

// NewLength wraps upstream, failing if it does not deliver exactly length
// bytes before EOF.
func NewLength(upstream Istream, length int64) *LengthIstream {
	l := &LengthIstream{remaining: length}
	l.Init(upstream, l)
	return l
}

func (l *LengthIstream) ReceiveMask() FdType { return FdNone }

func (l *LengthIstream) Read() { l.Upstream.Read() }

func (l *LengthIstream) OnData(p []byte) int {
	if l.remaining <= 0 {
		if len(p) > 0 {
			l.DestroyError(bperr.New(bperr.Protocol, "too much data from upstream past declared length", nil))
		}
		return len(p)
	}

	excess := int64(len(p)) > l.remaining
	q := p
	if excess {
		q = p[:l.remaining]
	}

	n := l.Handler().OnData(q)
	l.remaining -= int64(n)

	if excess && n == len(q) {
		l.DestroyError(bperr.New(bperr.Protocol, "too much data from upstream past declared length", nil))
		return len(p)
	}

	return n
}

func (l *LengthIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	if int64(maxLength) > l.remaining {
		maxLength = int(l.remaining)
	}
	res, n, err := l.Handler().OnDirect(fd, offset, maxLength, thenEOF && int64(maxLength) == l.remaining)
	if res == DirectOK {
		l.remaining -= int64(n)
	}
	return res, n, err
}

func (l *LengthIstream) OnEof() {
	if l.remaining > 0 {
		l.DestroyError(bperr.New(bperr.Protocol, "premature end of stream before declared length", nil))
		return
	}
	l.DestroyEof()
}

func (l *LengthIstream) OnError(err error) {
	l.DestroyError(err)
}

func (l *LengthIstream) GetAvailable(partial bool) int64 {
	avail := l.Upstream.GetAvailable(partial)
	if avail < 0 {
		if partial {
			return -1
		}
		return l.remaining
	}
	if avail > l.remaining {
		return l.remaining
	}
	return avail
}

func (l *LengthIstream) Skip(n int64) int64 {
	if n > l.remaining {
		n = l.remaining
	}
	sk := l.Upstream.Skip(n)
	if sk > 0 {
		l.remaining -= sk
	}
	return sk
}

func (l *LengthIstream) FillBucketList(list *BucketList) {
	inner := NewBucketList()
	l.Upstream.FillBucketList(inner)

	remaining := l.remaining
	for _, b := range inner.Buckets() {
		if remaining <= 0 {
			break
		}
		if b.Kind == BucketNonBuffer {
			list.PushNonBuffer()
			continue
		}
		d := b.Data
		if int64(len(d)) > remaining {
			d = d[:remaining]
		}
		list.PushBuffer(d)
		remaining -= int64(len(d))
	}
	if remaining > 0 {
		list.SetMore()
	}
}

func (l *LengthIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if int64(n) > l.remaining {
		n = int(l.remaining)
	}
	consumed, _ = l.Upstream.ConsumeBucketList(n)
	l.remaining -= int64(consumed)
	return consumed, l.remaining == 0
}
