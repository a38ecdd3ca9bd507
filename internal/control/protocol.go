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

// Package control implements the datagram control protocol the proxy
// accepts from its management tooling: a magic-framed packet of
// big-endian commands that flush caches, invalidate translations, fade
// worker children, or dump stats. The default carrier is a UDP socket;
// a NATS subject can carry the same frames for deployments that already
// run a bus.
package control

import (
	"encoding/binary"
	"fmt"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// Magic starts every control packet.
const Magic uint32 = 0x63707278

// Command identifies one operation inside a control packet.
type Command uint16

const (
	Nop Command = iota
	TcacheInvalidate
	EnableZeroconf
	DisableZeroconf
	FlushHTTPCache
	FlushFilterCache
	FadeChildren
	Stats
)

func (c Command) String() string {
	switch c {
	case Nop:
		return "NOP"
	case TcacheInvalidate:
		return "TCACHE_INVALIDATE"
	case EnableZeroconf:
		return "ENABLE_ZEROCONF"
	case DisableZeroconf:
		return "DISABLE_ZEROCONF"
	case FlushHTTPCache:
		return "FLUSH_HTTP_CACHE"
	case FlushFilterCache:
		return "FLUSH_FILTER_CACHE"
	case FadeChildren:
		return "FADE_CHILDREN"
	case Stats:
		return "STATS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
	}
}

// Frame is one decoded command with its payload.
type Frame struct {
	Command Command
	Payload []byte
}

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int { return (n + 3) &^ 3 }

// Encode serializes frames into one packet: the magic word followed by
// each command as {u16 payload-length BE, u16 command BE, payload,
// zero padding to a 4-byte boundary}.
func Encode(frames []Frame) []byte {
	size := 4
	for _, f := range frames {
		size += 4 + pad4(len(f.Payload))
	}

	out := make([]byte, size)
	binary.BigEndian.PutUint32(out, Magic)
	off := 4
	for _, f := range frames {
		binary.BigEndian.PutUint16(out[off:], uint16(len(f.Payload)))
		binary.BigEndian.PutUint16(out[off+2:], uint16(f.Command))
		copy(out[off+4:], f.Payload)
		off += 4 + pad4(len(f.Payload))
	}
	return out
}

// Decode parses a packet. A wrong magic, a truncated header or payload,
// or a total length that is not a multiple of 4 rejects the whole
// packet — partial dispatch would make a malformed packet's effect
// depend on where it was cut.
func Decode(p []byte) ([]Frame, error) {
	if len(p) < 4 || len(p)%4 != 0 {
		return nil, bperr.New(bperr.Protocol, fmt.Sprintf("control packet length %d is not a positive multiple of 4", len(p)), nil)
	}
	if m := binary.BigEndian.Uint32(p); m != Magic {
		return nil, bperr.New(bperr.Protocol, fmt.Sprintf("control packet magic %#08x mismatch", m), nil)
	}

	var frames []Frame
	off := 4
	for off < len(p) {
		if len(p)-off < 4 {
			return nil, bperr.New(bperr.Protocol, "truncated control command header", nil)
		}
		length := int(binary.BigEndian.Uint16(p[off:]))
		cmd := Command(binary.BigEndian.Uint16(p[off+2:]))
		off += 4

		if len(p)-off < pad4(length) {
			return nil, bperr.New(bperr.Protocol, "truncated control command payload", nil)
		}
		var payload []byte
		if length > 0 {
			payload = append([]byte(nil), p[off:off+length]...)
		}
		off += pad4(length)

		frames = append(frames, Frame{Command: cmd, Payload: payload})
	}
	return frames, nil
}
