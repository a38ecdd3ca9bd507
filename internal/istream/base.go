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

// Base is embedded by every concrete Istream and filter. It owns the
// downstream Handler reference and enforces the "exactly one of
// {OnEof, OnError} unless explicitly Closed" termination rule so each
// implementation doesn't have to re-derive it.
type Base struct {
	handler Handler
	done    bool
}

// SetHandler implements Istream.
func (b *Base) SetHandler(h Handler) { b.handler = h }

// Handler returns the attached downstream handler, or nil if none.
func (b *Base) Handler() Handler { return b.handler }

// Done reports whether a terminal event has already fired or Close was
// called.
func (b *Base) Done() bool { return b.done }

// DestroyEof fires OnEof exactly once. Subsequent calls are no-ops, which
// lets callers at the end of a Read loop call it unconditionally.
func (b *Base) DestroyEof() {
	if b.done {
		return
	}
	b.done = true
	if b.handler != nil {
		b.handler.OnEof()
	}
}

// DestroyError fires OnError(err) exactly once.
func (b *Base) DestroyError(err error) {
	if b.done {
		return
	}
	b.done = true
	if b.handler != nil {
		b.handler.OnError(err)
	}
}

// MarkClosed suppresses any future OnEof/OnError without invoking the
// handler, for use by Close implementations.
func (b *Base) MarkClosed() { b.done = true }
