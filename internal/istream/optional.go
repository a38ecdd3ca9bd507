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

// OptionalIstream wraps content the caller may decide it doesn't need
// after all (e.g. a cached response body prepared speculatively).
// Discard replaces it with an empty stream before the first byte has
// been requested from downstream.
type OptionalIstream struct {
	Filter
	discarded bool
}

// NewOptional wraps upstream.
func NewOptional(upstream Istream) *OptionalIstream {
	o := &OptionalIstream{}
	o.Init(upstream, o)
	return o
}

func (o *OptionalIstream) ReceiveMask() FdType {
	if o.discarded {
		return FdNone
	}
	return o.Handler().ReceiveMask()
}

// Discard abandons upstream's content; the stream behaves as
// immediately empty from here on.
func (o *OptionalIstream) Discard() {
	if o.discarded {
		return
	}
	o.discarded = true
	o.Upstream.Close()
}

func (o *OptionalIstream) Read() {
	if o.discarded {
		o.DestroyEof()
		return
	}
	o.Upstream.Read()
}

func (o *OptionalIstream) OnData(p []byte) int { return o.Handler().OnData(p) }

func (o *OptionalIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return o.Handler().OnDirect(fd, offset, maxLength, thenEOF)
}

func (o *OptionalIstream) OnEof() { o.DestroyEof() }

func (o *OptionalIstream) OnError(err error) { o.DestroyError(err) }

func (o *OptionalIstream) GetAvailable(partial bool) int64 {
	if o.discarded {
		return 0
	}
	return o.Upstream.GetAvailable(partial)
}

func (o *OptionalIstream) Skip(n int64) int64 {
	if o.discarded {
		return 0
	}
	return o.Upstream.Skip(n)
}

func (o *OptionalIstream) FillBucketList(list *BucketList) {
	if o.discarded {
		return
	}
	o.Upstream.FillBucketList(list)
}

func (o *OptionalIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if o.discarded {
		return 0, true
	}
	return o.Upstream.ConsumeBucketList(n)
}

func (o *OptionalIstream) AsFd() (uintptr, bool) {
	if o.discarded {
		return 0, false
	}
	return o.Upstream.AsFd()
}

func (o *OptionalIstream) DirectMask() FdType {
	if o.discarded {
		return FdNone
	}
	return o.Upstream.DirectMask()
}
