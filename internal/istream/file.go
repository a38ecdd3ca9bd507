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
	"io"
	"os"
)

// FileIstream serves the remaining bytes of a *os.File (or any regular
// file opened at a known offset), preferring a direct fd hand-off over
// copying through a user-space buffer.
type FileIstream struct {
	Base
	f      *os.File
	offset int64
	length int64 // -1 means unknown / read to EOF
	buf    [64 * 1024]byte
}

// NewFileIstream wraps f, starting at offset and serving up to length
// bytes (-1 for "until EOF").
func NewFileIstream(f *os.File, offset, length int64) *FileIstream {
	return &FileIstream{f: f, offset: offset, length: length}
}

func (fi *FileIstream) remaining() int64 {
	if fi.length < 0 {
		return -1
	}
	return fi.length
}

func (fi *FileIstream) AsFd() (uintptr, bool) {
	if fi.Done() || fi.offset != 0 {
		return 0, false
	}
	fd := fi.f.Fd()
	fi.MarkClosed()
	return fd, true
}

func (fi *FileIstream) DirectMask() FdType { return FdFile }

func (fi *FileIstream) Read() {
	if fi.Done() {
		return
	}

	h := fi.Handler()

	if h.ReceiveMask().Has(FdFile) {
		maxLen := len(fi.buf)
		if fi.length >= 0 && fi.length < int64(maxLen) {
			maxLen = int(fi.length)
		}
		if maxLen > 0 {
			res, n, err := h.OnDirect(fi.f.Fd(), fi.offset, maxLen, fi.length >= 0 && fi.length == int64(maxLen))
			switch res {
			case DirectOK:
				fi.offset += int64(n)
				if fi.length >= 0 {
					fi.length -= int64(n)
				}
				if fi.length == 0 {
					fi.DestroyEof()
				}
				return
			case DirectEnd:
				fi.DestroyEof()
				return
			case DirectClosed:
				fi.MarkClosed()
				return
			case DirectBlocking:
				return
			case DirectErrno:
				fi.DestroyError(err)
				return
			}
		}
	}

	fi.readBuffered()
}

func (fi *FileIstream) readBuffered() {
	n := len(fi.buf)
	if fi.length >= 0 && int64(n) > fi.length {
		n = int(fi.length)
	}
	if n == 0 {
		fi.DestroyEof()
		return
	}

	rn, err := fi.f.ReadAt(fi.buf[:n], fi.offset)
	if rn > 0 {
		fi.offset += int64(rn)
		if fi.length >= 0 {
			fi.length -= int64(rn)
		}
		consumed := fi.Handler().OnData(fi.buf[:rn])
		if consumed != rn {
			// downstream kept fewer bytes than we read; rewind so the
			// remainder is re-read next time (mirrors upstream retaining
			// unconsumed bytes for sources that can't hold a pending
			// buffer across Read calls).
			fi.offset -= int64(rn - consumed)
			if fi.length >= 0 {
				fi.length += int64(rn - consumed)
			}
			return
		}
	}

	if err == io.EOF || (fi.length >= 0 && fi.length == 0) {
		fi.DestroyEof()
		return
	}
	if err != nil {
		fi.DestroyError(err)
	}
}

func (fi *FileIstream) GetAvailable(partial bool) int64 {
	return fi.remaining()
}

func (fi *FileIstream) Skip(n int64) int64 {
	if fi.length >= 0 && n > fi.length {
		n = fi.length
	}
	fi.offset += n
	if fi.length >= 0 {
		fi.length -= n
	}
	return n
}

func (fi *FileIstream) FillBucketList(list *BucketList) {
	// Files are only ever offered for direct (splice) transfer; a
	// caller that wants buffers must Read() them.
	list.PushNonBuffer()
	if fi.length != 0 {
		list.SetMore()
	}
}

func (fi *FileIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	return 0, false
}

func (fi *FileIstream) Close() {
	fi.MarkClosed()
}
