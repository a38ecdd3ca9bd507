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

// CatchIstream absorbs an upstream error instead of propagating it: a
// response already mid-flight (headers sent, Content-Length advertised)
// can't simply fail partway through, so Catch pads whatever it had
// already promised via GetAvailable with spaces and reports a clean
// EOF instead. OnCaught, if set, observes the absorbed error (typically
// wired to a logger) without affecting stream behavior.
type CatchIstream struct {
	Filter

	OnCaught func(err error)

	advertised int64 // -1 once known to be unknown; -2 == "not yet queried"
	delivered  int64
}

// NewCatch wraps upstream, absorbing any error it raises.
func NewCatch(upstream Istream) *CatchIstream {
	c := &CatchIstream{advertised: -2}
	c.Init(upstream, c)
	return c
}

func (c *CatchIstream) ReceiveMask() FdType { return FdNone }

func (c *CatchIstream) Read() { c.Upstream.Read() }

func (c *CatchIstream) OnData(p []byte) int {
	n := c.Handler().OnData(p)
	c.delivered += int64(n)
	return n
}

func (c *CatchIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	res, n, err := c.Handler().OnDirect(fd, offset, maxLength, thenEOF)
	if res == DirectOK {
		c.delivered += int64(n)
	}
	return res, n, err
}

func (c *CatchIstream) OnEof() { c.DestroyEof() }

// OnError absorbs err: it pads out to the previously advertised length
// with spaces, if one was advertised and not yet reached, then reports
// a clean EOF.
func (c *CatchIstream) OnError(err error) {
	if c.OnCaught != nil {
		c.OnCaught(err)
	}

	if c.advertised >= 0 {
		pad := c.advertised - c.delivered
		for pad > 0 {
			chunk := pad
			if chunk > int64(len(spacePad)) {
				chunk = int64(len(spacePad))
			}
			n := c.Handler().OnData(spacePad[:chunk])
			c.delivered += int64(n)
			pad -= int64(n)
			if int64(n) < chunk {
				break // downstream blocked; give up padding, still report EOF
			}
		}
	}

	c.DestroyEof()
}

var spacePad = make([]byte, 4096)

func init() {
	for i := range spacePad {
		spacePad[i] = ' '
	}
}

func (c *CatchIstream) GetAvailable(partial bool) int64 {
	avail := c.Upstream.GetAvailable(partial)
	if !partial {
		c.advertised = avail
	}
	return avail
}

func (c *CatchIstream) Skip(n int64) int64 {
	sk := c.Upstream.Skip(n)
	if sk > 0 {
		c.delivered += sk
	}
	return sk
}

func (c *CatchIstream) FillBucketList(list *BucketList) { c.Upstream.FillBucketList(list) }

func (c *CatchIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	consumed, eof = c.Upstream.ConsumeBucketList(n)
	c.delivered += int64(consumed)
	return consumed, eof
}

func (c *CatchIstream) AsFd() (uintptr, bool) { return 0, false }

func (c *CatchIstream) DirectMask() FdType { return FdNone }
