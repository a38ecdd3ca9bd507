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
	"bytes"
	"io"

	kpgzip "github.com/klauspost/compress/gzip"
	kpzlib "github.com/klauspost/compress/zlib"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// compressor is the subset of the klauspost writers DeflateIstream
// drives: Write feeds plain bytes, Flush emits a sync-flush point so
// everything written so far becomes decodable, Close emits the final
// block.
type compressor interface {
	io.WriteCloser
	Flush() error
}

// DeflateIstream compresses upstream bytes into zlib ("deflate"
// content-coding) or gzip framing. Compressed output accumulates in an
// internal fifo; a sync flush is emitted whenever downstream demands
// data the compressor is still sitting on, and the final block is
// emitted on upstream EOF.
type DeflateIstream struct {
	Filter

	w    compressor
	fifo bytes.Buffer

	// set once upstream reported EOF and w.Close ran; the stream ends
	// when the fifo drains after this.
	finished bool
	reading  bool
}

// NewDeflate wraps upstream in a zlib-framed compressor.
func NewDeflate(upstream Istream) *DeflateIstream {
	d := &DeflateIstream{}
	d.w = kpzlib.NewWriter(&d.fifo)
	d.Init(upstream, d)
	return d
}

// NewGzip wraps upstream in a gzip-framed compressor.
func NewGzip(upstream Istream) *DeflateIstream {
	d := &DeflateIstream{}
	d.w = kpgzip.NewWriter(&d.fifo)
	d.Init(upstream, d)
	return d
}

// ReceiveMask clears the direct mask: the compressor must see every
// byte.
func (d *DeflateIstream) ReceiveMask() FdType { return FdNone }

func (d *DeflateIstream) Read() {
	if d.reading {
		return
	}
	d.reading = true
	defer func() { d.reading = false }()

	if d.deliver() {
		return
	}

	if d.finished {
		d.DestroyEof()
		return
	}

	// ask upstream for more plain bytes; OnData/OnEof will run
	// re-entrantly and refill the fifo
	d.Upstream.Read()

	if d.Done() {
		return
	}

	// upstream made no deliverable progress but downstream wants data:
	// force a sync flush so whatever the compressor holds becomes
	// visible
	if d.fifo.Len() == 0 && !d.finished {
		if err := d.w.Flush(); err != nil {
			d.DestroyError(bperr.New(bperr.IO, "deflate flush", err))
			return
		}
	}

	if !d.deliver() && d.finished {
		d.DestroyEof()
	}
}

// deliver pushes fifo contents downstream, honoring partial consumption.
// Returns true if any bytes were handed over.
func (d *DeflateIstream) deliver() bool {
	if d.fifo.Len() == 0 {
		return false
	}
	n := d.Handler().OnData(d.fifo.Bytes())
	if n > 0 {
		d.fifo.Next(n)
	}
	return n > 0
}

func (d *DeflateIstream) OnData(p []byte) int {
	if _, err := d.w.Write(p); err != nil {
		d.DestroyError(bperr.New(bperr.IO, "deflate write", err))
		return len(p)
	}
	d.deliver()
	// the compressor owns the bytes now, so upstream never retains
	return len(p)
}

func (d *DeflateIstream) OnDirect(uintptr, int64, int, bool) (DirectResult, int, error) {
	// never advertised via ReceiveMask
	return DirectErrno, 0, bperr.New(bperr.IO, "deflate cannot take direct transfers", nil)
}

func (d *DeflateIstream) OnEof() {
	if err := d.w.Close(); err != nil {
		d.DestroyError(bperr.New(bperr.IO, "deflate finish", err))
		return
	}
	d.finished = true
	d.deliver()
	if d.fifo.Len() == 0 {
		d.DestroyEof()
	}
}

func (d *DeflateIstream) OnError(err error) {
	d.DestroyError(err)
}

// GetAvailable cannot know the compressed size ahead of time; with
// partial=true the fifo content is a valid lower bound.
func (d *DeflateIstream) GetAvailable(partial bool) int64 {
	if partial {
		return int64(d.fifo.Len())
	}
	if d.finished {
		return int64(d.fifo.Len())
	}
	return -1
}

func (d *DeflateIstream) Skip(int64) int64 { return -1 }

func (d *DeflateIstream) FillBucketList(list *BucketList) {
	list.PushBuffer(d.fifo.Bytes())
	if !d.finished {
		list.SetMore()
	}
}

func (d *DeflateIstream) ConsumeBucketList(n int) (consumed int, eof bool) {
	if n > d.fifo.Len() {
		n = d.fifo.Len()
	}
	d.fifo.Next(n)
	return n, d.finished && d.fifo.Len() == 0
}

func (d *DeflateIstream) AsFd() (uintptr, bool) { return 0, false }

func (d *DeflateIstream) DirectMask() FdType { return FdNone }
