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

// DeferReadIstream breaks Read reentrancy: instead of calling upstream's
// Read synchronously (which, for a deep filter chain, can recurse back
// into a handler still on the call stack), it hands the call to Schedule
// and returns immediately. Schedule is typically an event-loop's
// "run this on the next iteration" primitive; a nil Schedule runs
// synchronously, which is only safe in tests.
type DeferReadIstream struct {
	Filter
	Schedule func(func())
	pending  bool
}

// NewDeferRead wraps upstream, deferring every Read through schedule.
func NewDeferRead(upstream Istream, schedule func(func())) *DeferReadIstream {
	d := &DeferReadIstream{Schedule: schedule}
	d.Init(upstream, d)
	return d
}

func (d *DeferReadIstream) ReceiveMask() FdType { return d.Handler().ReceiveMask() }

func (d *DeferReadIstream) Read() {
	if d.pending {
		return
	}
	d.pending = true
	run := func() {
		d.pending = false
		if !d.Done() {
			d.Upstream.Read()
		}
	}
	if d.Schedule != nil {
		d.Schedule(run)
	} else {
		run()
	}
}

func (d *DeferReadIstream) OnData(p []byte) int { return d.Handler().OnData(p) }

func (d *DeferReadIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return d.Handler().OnDirect(fd, offset, maxLength, thenEOF)
}

func (d *DeferReadIstream) OnEof() { d.DestroyEof() }

func (d *DeferReadIstream) OnError(err error) { d.DestroyError(err) }

func (d *DeferReadIstream) GetAvailable(partial bool) int64 { return d.Upstream.GetAvailable(partial) }

func (d *DeferReadIstream) Skip(n int64) int64 { return d.Upstream.Skip(n) }

func (d *DeferReadIstream) FillBucketList(list *BucketList) { d.Upstream.FillBucketList(list) }

func (d *DeferReadIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	return d.Upstream.ConsumeBucketList(n)
}

func (d *DeferReadIstream) AsFd() (uintptr, bool) { return 0, false }

func (d *DeferReadIstream) DirectMask() FdType { return d.Upstream.DirectMask() }
