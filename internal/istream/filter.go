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

// Filter is the common shape of every istream filter: it owns an upstream
// Istream and is itself that upstream's Handler, while exposing the
// Istream interface to its own downstream via Base. A concrete filter
// embeds it and implements the Handler callbacks, transforming data
// before forwarding it to its own downstream.
type Filter struct {
	Base
	Upstream Istream
}

// Init wires f as upstream's handler. Concrete filters call this from
// their constructor after setting any filter-specific state.
func (f *Filter) Init(upstream Istream, self Handler) {
	f.Upstream = upstream
	upstream.SetHandler(self)
}

// Close closes the upstream istream and marks this filter closed. Most
// filters can use this verbatim; filters holding extra state (e.g.
// Replace's buffer) override and call this after their own cleanup.
func (f *Filter) Close() {
	f.MarkClosed()
	if f.Upstream != nil {
		f.Upstream.Close()
	}
}

// AsFd refuses the hand-off by default: a filter that transforms bytes
// cannot surrender its upstream's fd. Passthrough filters override.
func (f *Filter) AsFd() (uintptr, bool) { return 0, false }

// DirectMask is empty by default for the same reason.
func (f *Filter) DirectMask() FdType { return FdNone }
