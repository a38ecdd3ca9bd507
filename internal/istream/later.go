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

// LaterIstream stands in for content whose real source doesn't exist
// yet (e.g. a backend response still being negotiated). Unlike Pause,
// which withholds reads from an upstream that already exists, Later has
// no Upstream at all until Resolve attaches one.
type LaterIstream struct {
	Base
	upstream    Istream
	readPending bool
}

// NewLater returns a stream with nothing behind it yet.
func NewLater() *LaterIstream {
	return &LaterIstream{}
}

func (l *LaterIstream) ReceiveMask() FdType { return FdNone }

// Resolve attaches the real upstream. If Read was called while
// unresolved, it is replayed against upstream immediately.
func (l *LaterIstream) Resolve(upstream Istream) {
	if l.upstream != nil {
		return
	}
	l.upstream = upstream
	upstream.SetHandler(l)
	if l.readPending {
		l.readPending = false
		upstream.Read()
	}
}

// ResolveError fails the stream before any upstream was ever attached.
func (l *LaterIstream) ResolveError(err error) {
	if l.upstream != nil {
		return
	}
	l.DestroyError(err)
}

func (l *LaterIstream) Read() {
	if l.upstream == nil {
		l.readPending = true
		return
	}
	l.upstream.Read()
}

func (l *LaterIstream) OnData(p []byte) int { return l.Handler().OnData(p) }

func (l *LaterIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return l.Handler().OnDirect(fd, offset, maxLength, thenEOF)
}

func (l *LaterIstream) OnEof() { l.DestroyEof() }

func (l *LaterIstream) OnError(err error) { l.DestroyError(err) }

func (l *LaterIstream) GetAvailable(partial bool) int64 {
	if l.upstream == nil {
		return -1
	}
	return l.upstream.GetAvailable(partial)
}

func (l *LaterIstream) Skip(n int64) int64 {
	if l.upstream == nil {
		return -1
	}
	return l.upstream.Skip(n)
}

func (l *LaterIstream) FillBucketList(list *BucketList) {
	if l.upstream == nil {
		list.SetMore()
		return
	}
	l.upstream.FillBucketList(list)
}

func (l *LaterIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if l.upstream == nil {
		return 0, false
	}
	return l.upstream.ConsumeBucketList(n)
}

func (l *LaterIstream) AsFd() (uintptr, bool) { return 0, false }

func (l *LaterIstream) DirectMask() FdType { return FdNone }

func (l *LaterIstream) Close() {
	l.MarkClosed()
	if l.upstream != nil {
		l.upstream.Close()
	}
}
