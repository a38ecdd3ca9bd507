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

// CappedIstream caps every OnData delivery to at most Max bytes,
// regardless of how much upstream offers in one call. FourIstream and
// ByteIstream are the two instantiations spec'd for exercising a
// handler's partial-consumption and backpressure handling.
type CappedIstream struct {
	Filter
	Max int
}

// NewCapped wraps upstream, splitting every delivery into chunks of at
// most max bytes.
func NewCapped(upstream Istream, max int) *CappedIstream {
	c := &CappedIstream{Max: max}
	c.Init(upstream, c)
	return c
}

// NewFour returns a CappedIstream with Max=4.
func NewFour(upstream Istream) *CappedIstream { return NewCapped(upstream, 4) }

// NewByte returns a CappedIstream with Max=1.
func NewByte(upstream Istream) *CappedIstream { return NewCapped(upstream, 1) }

func (c *CappedIstream) ReceiveMask() FdType { return FdNone }

func (c *CappedIstream) Read() { c.Upstream.Read() }

func (c *CappedIstream) OnData(p []byte) int {
	q := p
	if len(q) > c.Max {
		q = q[:c.Max]
	}
	return c.Handler().OnData(q)
}

func (c *CappedIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	if maxLength > c.Max {
		maxLength = c.Max
	}
	return c.Handler().OnDirect(fd, offset, maxLength, thenEOF && maxLength == c.Max)
}

func (c *CappedIstream) OnEof() { c.DestroyEof() }

func (c *CappedIstream) OnError(err error) { c.DestroyError(err) }

func (c *CappedIstream) GetAvailable(partial bool) int64 { return c.Upstream.GetAvailable(partial) }

func (c *CappedIstream) Skip(n int64) int64 { return c.Upstream.Skip(n) }

func (c *CappedIstream) FillBucketList(list *BucketList) {
	inner := NewBucketList()
	c.Upstream.FillBucketList(inner)
	for _, b := range inner.Buckets() {
		if b.Kind == BucketNonBuffer {
			list.PushNonBuffer()
			continue
		}
		d := b.Data
		if len(d) > c.Max {
			d = d[:c.Max]
		}
		list.PushBuffer(d)
		list.SetMore()
	}
	if inner.HasMore() {
		list.SetMore()
	}
}

func (c *CappedIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if n > c.Max {
		n = c.Max
	}
	return c.Upstream.ConsumeBucketList(n)
}

func (c *CappedIstream) AsFd() (uintptr, bool) { return 0, false }

func (c *CappedIstream) DirectMask() FdType { return FdNone }
