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

// Sink is a minimal Handler that accumulates everything it receives. It
// is exported for reuse by filter and higher-layer tests that need a
// downstream handler without wiring a real consumer.
type Sink struct {
	Data      []byte
	Eof       bool
	Err       error
	MaxAccept int // 0 means accept unconditionally

	OnDataFunc func(p []byte) int // overrides default accept-all behavior when set
}

func (s *Sink) ReceiveMask() FdType { return FdNone }

func (s *Sink) OnData(p []byte) int {
	if s.OnDataFunc != nil {
		return s.OnDataFunc(p)
	}

	n := len(p)
	if s.MaxAccept > 0 && n > s.MaxAccept {
		n = s.MaxAccept
	}
	s.Data = append(s.Data, p[:n]...)
	return n
}

func (s *Sink) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (DirectResult, int, error) {
	return DirectBlocking, 0, nil
}

func (s *Sink) OnEof() { s.Eof = true }

func (s *Sink) OnError(err error) { s.Err = err }

// Done reports whether a terminal callback fired.
func (s *Sink) Done() bool { return s.Eof || s.Err != nil }
