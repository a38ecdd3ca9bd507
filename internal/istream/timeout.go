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
	"sync"
	"time"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// TimeoutIstream fails the stream with a Timeout-coded error if no data
// (and no EOF/error) arrives from upstream within Duration of the last
// Read call. Every OnData/OnEof/OnError resets the deadline.
type TimeoutIstream struct {
	Filter

	Duration time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewTimeout wraps upstream with the given inactivity timeout.
func NewTimeout(upstream Istream, d time.Duration) *TimeoutIstream {
	t := &TimeoutIstream{Duration: d}
	t.Init(upstream, t)
	return t
}

func (t *TimeoutIstream) ReceiveMask() FdType { return FdNone }

func (t *TimeoutIstream) Read() {
	t.arm()
	t.Upstream.Read()
}

func (t *TimeoutIstream) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.Duration, t.fire)
}

func (t *TimeoutIstream) disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *TimeoutIstream) fire() {
	if t.Done() {
		return
	}
	t.DestroyError(bperr.New(bperr.Timeout, "istream: inactivity timeout", nil))
}

func (t *TimeoutIstream) OnData(p []byte) int {
	t.arm()
	return t.Handler().OnData(p)
}

func (t *TimeoutIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	t.arm()
	return t.Handler().OnDirect(fd, offset, maxLength, thenEOF)
}

func (t *TimeoutIstream) OnEof() {
	t.disarm()
	t.DestroyEof()
}

func (t *TimeoutIstream) OnError(err error) {
	t.disarm()
	t.DestroyError(err)
}

func (t *TimeoutIstream) GetAvailable(partial bool) int64 { return t.Upstream.GetAvailable(partial) }

func (t *TimeoutIstream) Skip(n int64) int64 { return t.Upstream.Skip(n) }

func (t *TimeoutIstream) FillBucketList(list *BucketList) { t.Upstream.FillBucketList(list) }

func (t *TimeoutIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	return t.Upstream.ConsumeBucketList(n)
}

func (t *TimeoutIstream) AsFd() (uintptr, bool) { return 0, false }

func (t *TimeoutIstream) DirectMask() FdType { return FdNone }

func (t *TimeoutIstream) Close() {
	t.disarm()
	t.Filter.Close()
}
