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

package session

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Magic tags delimit the binary snapshot format (see the "Session file
// format"): a little-endian stream of fixed tags, length-prefixed
// strings (0xFFFF meaning null), and an end-of-record sentinel closing
// each session. Loading is strict: any mismatch aborts with an error
// rather than skipping ahead.
const (
	magicFile           uint32 = 0xBEF10001
	magicSession        uint32 = 0xBEF10002
	magicWidgetSession  uint32 = 0xBEF10003
	magicCookie         uint32 = 0xBEF10004
	magicEndOfRecord    uint32 = 0xBEF1FFFE
	magicEndOfList      uint32 = 0xBEF1FFFF
	nullStringLen       uint16 = 0xFFFF
)

// formatVersion lets a future loader recognize and refuse an
// incompatible snapshot instead of misparsing it.
const formatVersion uint32 = 1

// Save writes every session in m to w, header-first, ending with
// magicEndOfList. Expired sessions are written as-is; Load is
// responsible for dropping them on read.
func (m *Manager) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if err := writeU32(bw, magicFile); err != nil {
		return err
	}
	if err := writeU32(bw, formatVersion); err != nil {
		return err
	}

	for _, s := range m.sessions {
		if err := writeU32(bw, magicSession); err != nil {
			return err
		}
		if err := writeSession(bw, s); err != nil {
			return err
		}
	}

	if err := writeU32(bw, magicEndOfList); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads a snapshot written by Save, dropping any session that has
// already expired and inserting the rest directly into m's set (no
// dpool is allocated for loaded sessions; TranslateBlob and friends are
// plain Go-heap byte slices once restored).
func (m *Manager) Load(r io.Reader) error {
	br := bufio.NewReader(r)

	tag, err := readU32(br)
	if err != nil {
		return err
	}
	if tag != magicFile {
		return fmt.Errorf("session: bad file magic %#x", tag)
	}
	ver, err := readU32(br)
	if err != nil {
		return err
	}
	if ver != formatVersion {
		return fmt.Errorf("session: unsupported snapshot version %d", ver)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for {
		tag, err := readU32(br)
		if err != nil {
			return err
		}
		if tag == magicEndOfList {
			return nil
		}
		if tag != magicSession {
			return fmt.Errorf("session: expected session or end-of-list tag, got %#x", tag)
		}

		s, err := readSession(br)
		if err != nil {
			return err
		}
		if s.Expires.Before(now) {
			continue
		}
		s.bucket = bucketFor(s.ID)
		m.sessions[s.ID] = s
	}
}

func writeSession(w io.Writer, s *Session) error {
	if err := writeString(w, &s.ID); err != nil {
		return err
	}
	if err := writeU64(w, uint64(s.Expires.Unix())); err != nil {
		return err
	}
	if err := writeU32(w, s.Counter); err != nil {
		return err
	}
	if _, err := w.Write(s.Flags[:]); err != nil {
		return err
	}
	if err := writeString(w, &s.Realm); err != nil {
		return err
	}
	if err := writeBytes(w, s.TranslateBlob); err != nil {
		return err
	}
	if err := writeString(w, nullableString(s.User)); err != nil {
		return err
	}
	if err := writeU64(w, uint64(s.UserExpires.Unix())); err != nil {
		return err
	}
	if err := writeString(w, &s.Language); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(s.WidgetSessions))); err != nil {
		return err
	}
	for _, ws := range s.WidgetSessions {
		if err := writeU32(w, magicWidgetSession); err != nil {
			return err
		}
		if err := writeString(w, &ws.ID); err != nil {
			return err
		}
		if err := writeString(w, &ws.Query); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(s.Cookies))); err != nil {
		return err
	}
	for _, c := range s.Cookies {
		if err := writeU32(w, magicCookie); err != nil {
			return err
		}
		if err := writeString(w, &c.Name); err != nil {
			return err
		}
		if err := writeString(w, &c.Value); err != nil {
			return err
		}
		if err := writeU64(w, uint64(c.Expires.Unix())); err != nil {
			return err
		}
	}

	return writeU32(w, magicEndOfRecord)
}

func readSession(r io.Reader) (*Session, error) {
	s := &Session{}

	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	s.ID = *id

	exp, err := readU64(r)
	if err != nil {
		return nil, err
	}
	s.Expires = time.Unix(int64(exp), 0)

	if s.Counter, err = readU32(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, s.Flags[:]); err != nil {
		return nil, err
	}
	realm, err := readString(r)
	if err != nil {
		return nil, err
	}
	s.Realm = *realm

	if s.TranslateBlob, err = readBytes(r); err != nil {
		return nil, err
	}
	user, err := readString(r)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.User = *user
	}
	userExp, err := readU64(r)
	if err != nil {
		return nil, err
	}
	s.UserExpires = time.Unix(int64(userExp), 0)

	lang, err := readString(r)
	if err != nil {
		return nil, err
	}
	s.Language = *lang

	nWidgets, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s.WidgetSessions = make([]WidgetSession, 0, nWidgets)
	for i := uint32(0); i < nWidgets; i++ {
		tag, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if tag != magicWidgetSession {
			return nil, fmt.Errorf("session: expected widget-session tag, got %#x", tag)
		}
		wid, err := readString(r)
		if err != nil {
			return nil, err
		}
		query, err := readString(r)
		if err != nil {
			return nil, err
		}
		s.WidgetSessions = append(s.WidgetSessions, WidgetSession{ID: *wid, Query: *query})
	}

	nCookies, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s.Cookies = make([]Cookie, 0, nCookies)
	for i := uint32(0); i < nCookies; i++ {
		tag, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if tag != magicCookie {
			return nil, fmt.Errorf("session: expected cookie tag, got %#x", tag)
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readString(r)
		if err != nil {
			return nil, err
		}
		cexp, err := readU64(r)
		if err != nil {
			return nil, err
		}
		s.Cookies = append(s.Cookies, Cookie{Name: *name, Value: *value, Expires: time.Unix(int64(cexp), 0)})
	}

	tag, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if tag != magicEndOfRecord {
		return nil, fmt.Errorf("session: expected end-of-record tag, got %#x", tag)
	}

	return s, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeBytes(w io.Writer, p []byte) error {
	if err := writeU32(w, uint32(len(p))); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func writeString(w io.Writer, s *string) error {
	if s == nil {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], nullStringLen)
		_, err := w.Write(b[:])
		return err
	}
	if len(*s) >= int(nullStringLen) {
		return fmt.Errorf("session: string of length %d exceeds 16-bit length prefix", len(*s))
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(*s)))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, *s)
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readString(r io.Reader) (*string, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(b[:])
	if n == nullStringLen {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	s := string(buf)
	return &s, nil
}
