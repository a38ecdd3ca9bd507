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

// ApproveIstream enforces admission control: at most the bytes
// authorised so far via Approve are allowed through to the downstream
// handler. Unauthorised bytes are simply not requested from upstream
// until more quota arrives.
type ApproveIstream struct {
	Filter
	quota int64
}

// NewApprove wraps upstream with zero initial quota; call Approve before
// the first Read does anything useful.
func NewApprove(upstream Istream) *ApproveIstream {
	a := &ApproveIstream{}
	a.Init(upstream, a)
	return a
}

func (a *ApproveIstream) ReceiveMask() FdType { return FdNone }

// Approve authorises n more bytes downstream and immediately resumes
// pulling from upstream if any quota is now available.
func (a *ApproveIstream) Approve(n int64) {
	a.quota += n
	if a.quota > 0 {
		a.Upstream.Read()
	}
}

func (a *ApproveIstream) Read() {
	if a.quota <= 0 {
		return
	}
	a.Upstream.Read()
}

func (a *ApproveIstream) OnData(p []byte) int {
	if a.quota <= 0 {
		return 0
	}
	q := p
	if int64(len(q)) > a.quota {
		q = q[:a.quota]
	}
	n := a.Handler().OnData(q)
	a.quota -= int64(n)
	return n
}

func (a *ApproveIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return DirectBlocking, 0, nil
}

func (a *ApproveIstream) OnEof() { a.DestroyEof() }

func (a *ApproveIstream) OnError(err error) { a.DestroyError(err) }

func (a *ApproveIstream) GetAvailable(partial bool) int64 { return -1 }

func (a *ApproveIstream) Skip(n int64) int64 { return -1 }

func (a *ApproveIstream) FillBucketList(list *BucketList) { list.SetMore() }

func (a *ApproveIstream) ConsumeBucketList(n int) (consumed int, eof bool) { return 0, false }
