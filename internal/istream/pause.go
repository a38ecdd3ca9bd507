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

// PauseIstream halts Read until Resume is called, letting a handler
// install itself on a slow path (e.g. waiting for a translation
// response) without upstream spinning against a handler that can't
// accept data yet.
type PauseIstream struct {
	Filter
	paused bool
}

// NewPause wraps upstream, starting paused.
func NewPause(upstream Istream) *PauseIstream {
	p := &PauseIstream{paused: true}
	p.Init(upstream, p)
	return p
}

func (p *PauseIstream) ReceiveMask() FdType { return p.Handler().ReceiveMask() }

// Resume unblocks Read. Calling Resume while not paused is a no-op.
func (p *PauseIstream) Resume() {
	if !p.paused {
		return
	}
	p.paused = false
}

func (p *PauseIstream) Read() {
	if p.paused {
		return
	}
	p.Upstream.Read()
}

func (p *PauseIstream) OnData(b []byte) int { return p.Handler().OnData(b) }

func (p *PauseIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return p.Handler().OnDirect(fd, offset, maxLength, thenEOF)
}

func (p *PauseIstream) OnEof() { p.DestroyEof() }

func (p *PauseIstream) OnError(err error) { p.DestroyError(err) }

func (p *PauseIstream) GetAvailable(partial bool) int64 {
	if p.paused {
		return -1
	}
	return p.Upstream.GetAvailable(partial)
}

func (p *PauseIstream) Skip(n int64) int64 {
	if p.paused {
		return -1
	}
	return p.Upstream.Skip(n)
}

func (p *PauseIstream) FillBucketList(list *BucketList) {
	if p.paused {
		list.SetMore()
		return
	}
	p.Upstream.FillBucketList(list)
}

func (p *PauseIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if p.paused {
		return 0, false
	}
	return p.Upstream.ConsumeBucketList(n)
}

func (p *PauseIstream) AsFd() (uintptr, bool) {
	if p.paused {
		return 0, false
	}
	return p.Upstream.AsFd()
}

func (p *PauseIstream) DirectMask() FdType { return p.Upstream.DirectMask() }
