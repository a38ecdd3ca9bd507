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

// InjectIstream forwards its upstream unchanged until Inject is called,
// at which point it fails immediately (even mid-delivery) with the
// given error. Tests use it to exercise a handler's error path at an
// otherwise unreachable point in a pipeline.
type InjectIstream struct {
	Filter
	injected error
}

// NewInject wraps upstream, passing it through until Inject is called.
func NewInject(upstream Istream) *InjectIstream {
	i := &InjectIstream{}
	i.Init(upstream, i)
	return i
}

func (i *InjectIstream) ReceiveMask() FdType { return FdNone }

// Inject fails the stream with err immediately. Later calls, and calls
// after the stream has already ended, are no-ops.
func (i *InjectIstream) Inject(err error) {
	if i.injected != nil || i.Done() {
		return
	}
	i.injected = err
	i.DestroyError(err)
}

func (i *InjectIstream) Read() {
	if i.injected != nil {
		return
	}
	i.Upstream.Read()
}

func (i *InjectIstream) OnData(p []byte) int {
	if i.injected != nil {
		return 0
	}
	return i.Handler().OnData(p)
}

func (i *InjectIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return DirectBlocking, 0, nil
}

func (i *InjectIstream) OnEof() { i.DestroyEof() }

func (i *InjectIstream) OnError(err error) { i.DestroyError(err) }

func (i *InjectIstream) GetAvailable(partial bool) int64 { return i.Upstream.GetAvailable(partial) }

func (i *InjectIstream) Skip(n int64) int64 { return i.Upstream.Skip(n) }

func (i *InjectIstream) FillBucketList(list *BucketList) { i.Upstream.FillBucketList(list) }

func (i *InjectIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	return i.Upstream.ConsumeBucketList(n)
}

func (i *InjectIstream) AsFd() (uintptr, bool) { return 0, false }

func (i *InjectIstream) DirectMask() FdType { return FdNone }
