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

package socket

import (
	"crypto/tls"
	"net"

	tlscfg "github.com/cm4all/beprox/internal/tlspolicy"
)

// TLSFilter is a Filter that terminates (server side) or originates
// (client side) TLS on top of the plain FilteredSocket buffers, built
// from a tlspolicy.Policy (cipher/curve/version allow-lists,
// certificate set, client-auth mode).
type TLSFilter struct {
	conn *tls.Conn
}

// NewServerTLSFilter wraps rawConn in a server-side *tls.Conn using cfg
// (for serverName-based SNI certificate selection) and performs the
// handshake. The returned net.Conn must be used in place of rawConn for
// all further I/O — the FilteredSocket is expected to be constructed
// with it, with this filter attached for symmetry with FilterInput /
// FilterOutput even though *tls.Conn already decrypts in Read/Write;
// the filter's job here is lifecycle (handshake, close_notify) rather
// than byte transformation, which is why FilterInput/FilterOutput are
// identity passthroughs.
func NewServerTLSFilter(rawConn net.Conn, cfg *tlscfg.Policy, serverName string) (*TLSFilter, net.Conn, error) {
	tc := tls.Server(rawConn, cfg.TLS(serverName))
	if err := tc.Handshake(); err != nil {
		return nil, nil, err
	}
	return &TLSFilter{conn: tc}, tc, nil
}

// NewClientTLSFilter wraps rawConn in a client-side *tls.Conn and
// performs the handshake.
func NewClientTLSFilter(rawConn net.Conn, cfg *tlscfg.Policy, serverName string) (*TLSFilter, net.Conn, error) {
	tc := tls.Client(rawConn, cfg.TLS(serverName))
	if err := tc.Handshake(); err != nil {
		return nil, nil, err
	}
	return &TLSFilter{conn: tc}, tc, nil
}

// FilterInput is an identity passthrough: decryption already happened
// inside (*tls.Conn).Read before FilteredSocket ever sees the bytes.
func (f *TLSFilter) FilterInput(p []byte) ([]byte, error) { return p, nil }

// FilterOutput is an identity passthrough: encryption happens inside
// (*tls.Conn).Write.
func (f *TLSFilter) FilterOutput(p []byte) ([]byte, error) { return p, nil }

func (f *TLSFilter) OnClosed() {}

func (f *TLSFilter) OnRemaining(remaining int) bool { return true }

func (f *TLSFilter) OnEnd() {}

// Close sends close_notify and releases the TLS session state.
func (f *TLSFilter) Close() error { return f.conn.Close() }

// ConnectionState exposes the negotiated protocol (for ALPN-based
// HTTP/1-vs-HTTP/2 dispatch) and peer certificate chain.
func (f *TLSFilter) ConnectionState() tls.ConnectionState { return f.conn.ConnectionState() }
