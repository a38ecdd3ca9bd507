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

package control

import (
	"net"

	"github.com/cm4all/beprox/internal/belog"
)

// Handler receives decoded control commands. Implementations route each
// to the owning subsystem (cache flush, session manager, worker
// supervisor).
type Handler interface {
	OnNop()
	OnTcacheInvalidate(payload []byte)
	OnZeroconf(enabled bool)
	OnFlushHTTPCache()
	OnFlushFilterCache()
	OnFadeChildren()
	OnStats() []byte
}

// Server reads control packets from a packet socket and dispatches
// them. Stats responses are sent back to the requesting address.
type Server struct {
	conn    net.PacketConn
	handler Handler
	log     belog.Logger

	done chan struct{}
}

// NewServer starts serving on conn. Ownership of conn transfers; Stop
// closes it.
func NewServer(conn net.PacketConn, handler Handler, log belog.Logger) *Server {
	s := &Server{
		conn:    conn,
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
	go s.serve()
	return s
}

// ListenAndServe binds a UDP socket on addr and serves it.
func ListenAndServe(addr string, handler Handler, log belog.Logger) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(conn, handler, log), nil
}

func (s *Server) serve() {
	defer close(s.done)

	buf := make([]byte, 65536)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		frames, err := Decode(buf[:n])
		if err != nil {
			s.log.WithFields(belog.Fields{"from": from.String(), "bytes": n}).
				WithError(err).Warn("rejecting control packet")
			continue
		}

		for _, f := range frames {
			s.dispatch(f, from)
		}
	}
}

func (s *Server) dispatch(f Frame, from net.Addr) {
	s.log.WithFields(belog.Fields{"command": f.Command.String(), "from": from.String()}).
		Debug("control command")

	switch f.Command {
	case Nop:
		s.handler.OnNop()
	case TcacheInvalidate:
		s.handler.OnTcacheInvalidate(f.Payload)
	case EnableZeroconf:
		s.handler.OnZeroconf(true)
	case DisableZeroconf:
		s.handler.OnZeroconf(false)
	case FlushHTTPCache:
		s.handler.OnFlushHTTPCache()
	case FlushFilterCache:
		s.handler.OnFlushFilterCache()
	case FadeChildren:
		s.handler.OnFadeChildren()
	case Stats:
		if stats := s.handler.OnStats(); stats != nil && from != nil {
			if _, err := s.conn.WriteTo(stats, from); err != nil {
				s.log.WithError(err).Warn("sending stats reply")
			}
		}
	default:
		s.log.WithFields(belog.Fields{"command": f.Command.String()}).
			Warn("ignoring unknown control command")
	}
}

// LocalAddr returns the bound address, for tests and the startup log.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Stop closes the socket and waits for the serve loop to drain.
func (s *Server) Stop() {
	_ = s.conn.Close()
	<-s.done
}
