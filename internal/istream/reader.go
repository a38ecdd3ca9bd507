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

import "io"

// ReaderIstream adapts an io.ReadCloser (e.g. an *http.Response.Body or
// a CGI child's stdout pipe) into the demand-driven Istream contract.
// Unlike FileIstream it has no known length and never offers a direct
// fd hand-off: plain io.ReadCloser gives no way to discover one.
type ReaderIstream struct {
	Base
	r   io.ReadCloser
	buf []byte
	eof bool
}

// NewReaderIstream wraps r, reading through an internal buffer of the
// given size (32KiB if zero).
func NewReaderIstream(r io.ReadCloser, bufSize int) *ReaderIstream {
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	return &ReaderIstream{r: r, buf: make([]byte, bufSize)}
}

func (ri *ReaderIstream) Read() {
	if ri.Done() {
		return
	}

	for {
		n, err := ri.r.Read(ri.buf)
		if n > 0 {
			consumed := ri.Handler().OnData(ri.buf[:n])
			if consumed < n {
				// downstream took less than offered; ReaderIstream has no
				// buffering of its own to retain the remainder, so this
				// would lose bytes — callers needing backpressure must sit
				// a buffering stage on top.
				panic("istream: ReaderIstream downstream must consume in full")
			}
		}
		if err != nil {
			ri.eof = true
			_ = ri.r.Close()
			if err == io.EOF {
				ri.DestroyEof()
			} else {
				ri.DestroyError(err)
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

func (ri *ReaderIstream) GetAvailable(partial bool) int64 { return -1 }

func (ri *ReaderIstream) Skip(n int64) int64 { return -1 }

func (ri *ReaderIstream) FillBucketList(list *BucketList) {
	list.SetMore()
	list.SetFallback()
}

func (ri *ReaderIstream) ConsumeBucketList(n int) (consumed int, eof bool) { return 0, false }

func (ri *ReaderIstream) AsFd() (uintptr, bool) { return 0, false }

func (ri *ReaderIstream) DirectMask() FdType { return FdNone }

func (ri *ReaderIstream) Close() {
	ri.MarkClosed()
	_ = ri.r.Close()
}
