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
	"github.com/nats-io/nats.go"

	"github.com/cm4all/beprox/internal/belog"
)

// NatsCarrier subscribes to a subject and feeds the same wire frames
// the UDP server accepts into a Handler. Stats replies go to the
// message's reply subject when one is set.
type NatsCarrier struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	handler Handler
	log     belog.Logger
}

// ConnectNats dials url, subscribes to subject, and dispatches until
// Stop.
func ConnectNats(url, subject string, handler Handler, log belog.Logger) (*NatsCarrier, error) {
	conn, err := nats.Connect(url, nats.Name("beprox-control"))
	if err != nil {
		return nil, err
	}

	c := &NatsCarrier{conn: conn, handler: handler, log: log}
	c.sub, err = conn.Subscribe(subject, c.onMessage)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *NatsCarrier) onMessage(msg *nats.Msg) {
	frames, err := Decode(msg.Data)
	if err != nil {
		c.log.WithFields(belog.Fields{"subject": msg.Subject, "bytes": len(msg.Data)}).
			WithError(err).Warn("rejecting control message")
		return
	}

	for _, f := range frames {
		c.dispatch(f, msg)
	}
}

func (c *NatsCarrier) dispatch(f Frame, msg *nats.Msg) {
	c.log.WithFields(belog.Fields{"command": f.Command.String(), "subject": msg.Subject}).
		Debug("control command")

	switch f.Command {
	case Nop:
		c.handler.OnNop()
	case TcacheInvalidate:
		c.handler.OnTcacheInvalidate(f.Payload)
	case EnableZeroconf:
		c.handler.OnZeroconf(true)
	case DisableZeroconf:
		c.handler.OnZeroconf(false)
	case FlushHTTPCache:
		c.handler.OnFlushHTTPCache()
	case FlushFilterCache:
		c.handler.OnFlushFilterCache()
	case FadeChildren:
		c.handler.OnFadeChildren()
	case Stats:
		if stats := c.handler.OnStats(); stats != nil && msg.Reply != "" {
			if err := msg.Respond(stats); err != nil {
				c.log.WithError(err).Warn("sending stats reply")
			}
		}
	default:
		c.log.WithFields(belog.Fields{"command": f.Command.String()}).
			Warn("ignoring unknown control command")
	}
}

// Stop unsubscribes and closes the connection.
func (c *NatsCarrier) Stop() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
}
