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

// memoryIstream serves a fixed, already in-memory byte slice. It never
// blocks and never advertises direct-fd transfer.
type memoryIstream struct {
	Base
	data []byte
	pos  int
}

// FromBytes returns an Istream that serves the contents of p. p is not
// copied; callers must not mutate it afterwards.
func FromBytes(p []byte) Istream {
	return &memoryIstream{data: p}
}

// FromString returns an Istream that serves s.
func FromString(s string) Istream {
	return FromBytes([]byte(s))
}

func (m *memoryIstream) remaining() []byte { return m.data[m.pos:] }

func (m *memoryIstream) Read() {
	if m.Done() {
		return
	}

	for m.pos < len(m.data) {
		n := m.Handler().OnData(m.remaining())
		if n < 0 || n > len(m.remaining()) {
			panic("istream: OnData consumed out of range")
		}
		m.pos += n
		if n == 0 {
			return // downstream blocked
		}
	}

	m.DestroyEof()
}

func (m *memoryIstream) GetAvailable(partial bool) int64 {
	return int64(len(m.remaining()))
}

func (m *memoryIstream) Skip(n int64) int64 {
	avail := int64(len(m.remaining()))
	if n > avail {
		n = avail
	}
	m.pos += int(n)
	return n
}

func (m *memoryIstream) FillBucketList(list *BucketList) {
	list.PushBuffer(m.remaining())
}

func (m *memoryIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	avail := len(m.remaining())
	if n > avail {
		n = avail
	}
	m.pos += n
	return n, m.pos >= len(m.data)
}

func (m *memoryIstream) AsFd() (uintptr, bool) { return 0, false }

func (m *memoryIstream) DirectMask() FdType { return FdNone }

func (m *memoryIstream) Close() { m.MarkClosed() }
