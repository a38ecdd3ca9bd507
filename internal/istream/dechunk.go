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
	bperr "github.com/cm4all/beprox/internal/bperrors"
)

type dechunkState int

const (
	dcSize dechunkState = iota
	dcData
	dcDataCR
	dcDataLF
	dcTrailerLine
	dcDone
)

// DechunkIstream parses HTTP/1.1 chunked transfer-coding. In verbatim
// mode the exact input bytes (including chunk-size lines, CRLFs, and
// trailers) are forwarded unchanged while the parser still tracks
// structure purely to detect the terminating zero-size chunk.
type DechunkIstream struct {
	Filter

	verbatim bool
	state    dechunkState
	size     int64
	line     []byte

	// OnEndCallback fires exactly once, when the zero-size chunk line has
	// been fully parsed — before any trailing CRLF or trailers upstream
	// still has to deliver. The early firing is deliberate; consumers
	// must not assume the terminator bytes have drained yet.
	OnEndCallback func()

	endFired bool
}

// NewDechunk wraps upstream, de-chunking its content. When verbatim is
// true, the original bytes pass through unmodified; parsing only serves
// to detect the terminator.
func NewDechunk(upstream Istream, verbatim bool) *DechunkIstream {
	d := &DechunkIstream{verbatim: verbatim}
	d.Init(upstream, d)
	return d
}

func (d *DechunkIstream) ReceiveMask() FdType { return FdNone }

func (d *DechunkIstream) Read() { d.Upstream.Read() }

// OnData advances the chunked parser over p. Non-verbatim mode forwards
// only chunk-data bytes downstream and applies backpressure exactly at
// those boundaries. Verbatim mode forwards every byte it consumes
// (size lines, CRLFs, data, trailers) unchanged, but — to keep the state
// machine's line-oriented parsing simple — only honors backpressure at
// chunk-data boundaries; framing bytes (a handful per chunk) are assumed
// to always be accepted by a downstream that is willing to take any data
// at all, the same assumption the buffered socket layer makes for its
// own small control writes.
func (d *DechunkIstream) OnData(p []byte) int {
	total := 0

	for total < len(p) {
		switch d.state {
		case dcDone:
			return total

		case dcSize, dcTrailerLine:
			n, line, complete := readLine(p[total:], &d.line)
			if d.verbatim && n > 0 {
				d.Handler().OnData(p[total : total+n])
			}
			total += n
			if !complete {
				return total
			}
			if err := d.onLine(line); err != nil {
				d.DestroyError(err)
				return len(p)
			}

		case dcDataCR, dcDataLF:
			b := p[total]
			if d.verbatim {
				d.Handler().OnData(p[total : total+1])
			}
			total++
			if err := d.onDataSep(b); err != nil {
				d.DestroyError(err)
				return len(p)
			}

		case dcData:
			n := int64(len(p) - total)
			if n > d.size {
				n = d.size
			}
			chunk := p[total : total+int(n)]

			consumed := d.Handler().OnData(chunk)
			total += consumed
			if int64(consumed) < n {
				return total
			}
			d.size -= n
			if d.size == 0 {
				d.state = dcDataCR
			}
		}
	}

	return total
}

// onLine handles a completed size/trailer line depending on state.
func (d *DechunkIstream) onLine(line []byte) error {
	switch d.state {
	case dcSize:
		sz, err := parseChunkSize(line)
		if err != nil {
			return err
		}
		d.size = sz
		if sz == 0 {
			if !d.endFired {
				d.endFired = true
				if d.OnEndCallback != nil {
					d.OnEndCallback()
				}
			}
			d.state = dcTrailerLine
		} else {
			d.state = dcData
		}
		return nil

	case dcTrailerLine:
		if len(line) == 0 {
			d.state = dcDone
			d.DestroyEof()
			return nil
		}
		// another trailer header line; stay in dcTrailerLine for the next
		return nil
	}
	return nil
}

func (d *DechunkIstream) onDataSep(b byte) error {
	switch d.state {
	case dcDataCR:
		if b != '\r' {
			return bperr.New(bperr.Protocol, "dechunk: expected CR after chunk data", nil)
		}
		d.state = dcDataLF
	case dcDataLF:
		if b != '\n' {
			return bperr.New(bperr.Protocol, "dechunk: expected LF after chunk data", nil)
		}
		d.state = dcSize
	}
	return nil
}

// readLine scans p for a CRLF-terminated line, accumulating into *acc
// across calls (acc is reset once a full line is returned). It returns
// the number of bytes of p consumed, the completed line (without CRLF)
// when complete is true, and complete itself.
func readLine(p []byte, acc *[]byte) (consumed int, line []byte, complete bool) {
	for i, b := range p {
		if b == '\n' {
			full := append(*acc, p[:i]...)
			// strip a trailing CR
			if len(full) > 0 && full[len(full)-1] == '\r' {
				full = full[:len(full)-1]
			}
			*acc = nil
			return i + 1, full, true
		}
	}
	*acc = append(*acc, p...)
	return len(p), nil, false
}

func parseChunkSize(line []byte) (int64, error) {
	// strip chunk extensions after ';'
	for i, b := range line {
		if b == ';' {
			line = line[:i]
			break
		}
	}
	if len(line) == 0 {
		return 0, bperr.New(bperr.Protocol, "dechunk: empty chunk size line", nil)
	}

	var v int64
	for _, b := range line {
		var d int64
		switch {
		case b >= '0' && b <= '9':
			d = int64(b - '0')
		case b >= 'a' && b <= 'f':
			d = int64(b-'a') + 10
		case b >= 'A' && b <= 'F':
			d = int64(b-'A') + 10
		default:
			return 0, bperr.New(bperr.Protocol, "dechunk: invalid chunk size digit", nil)
		}
		v = v*16 + d
	}
	return v, nil
}

func (d *DechunkIstream) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return DirectBlocking, 0, nil
}

func (d *DechunkIstream) OnEof() {
	if d.state != dcDone {
		d.DestroyError(bperr.New(bperr.Protocol, "dechunk: premature eof inside chunked body", nil))
	}
}

func (d *DechunkIstream) OnError(err error) { d.DestroyError(err) }

func (d *DechunkIstream) GetAvailable(partial bool) int64 { return -1 }

func (d *DechunkIstream) Skip(n int64) int64 { return -1 }

func (d *DechunkIstream) FillBucketList(list *BucketList) { list.SetMore() }

func (d *DechunkIstream) ConsumeBucketList(n int) (consumed int, eof bool) { return 0, false }
