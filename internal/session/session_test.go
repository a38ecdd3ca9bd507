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

package session_test

import (
	"bytes"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/session"
	"github.com/cm4all/beprox/internal/shm"
)

func TestSession(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "session")
}

func newManager(idleTimeout time.Duration) *session.Manager {
	return session.New(session.Config{
		Region:      shm.New(256, 4096),
		IdleTimeout: idleTimeout,
	})
}

var _ = Describe("Manager", func() {
	It("creates, fetches, and deletes a session", func() {
		m := newManager(time.Minute)

		s, err := m.New("realm")
		Expect(err).NotTo(HaveOccurred())
		id := s.ID
		m.Put(s)

		got, err := m.Get(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(id))
		Expect(got.Counter).To(Equal(uint32(1)))
		m.Put(got)

		Expect(m.Delete(id)).To(Succeed())
		_, err = m.Get(id)
		Expect(err).To(MatchError(session.ErrNotFound))
	})

	It("reports ErrNotFound for an unknown id", func() {
		m := newManager(time.Minute)
		_, err := m.Get("deadbeef")
		Expect(err).To(MatchError(session.ErrNotFound))
	})

	It("routes generated ids to the configured cluster node", func() {
		m := session.New(session.Config{
			Region:      shm.New(256, 4096),
			IdleTimeout: time.Minute,
			ClusterSize: 8,
			ClusterNode: 3,
			IDWords:     1,
		})

		for i := 0; i < 50; i++ {
			s, err := m.New("realm")
			Expect(err).NotTo(HaveOccurred())
			m.Put(s)

			hash, err := session.ClusterHash(s.ID, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(hash).To(Equal(uint32(3)))
		}
	})

	It("visits only non-expired sessions", func() {
		m := newManager(time.Minute)

		s1, err := m.New("realm")
		Expect(err).NotTo(HaveOccurred())
		m.Put(s1)
		s2, err := m.New("realm")
		Expect(err).NotTo(HaveOccurred())
		m.Put(s2)

		seen := map[string]bool{}
		m.Visit(func(s *session.Session) bool {
			seen[s.ID] = true
			return true
		})
		Expect(seen).To(HaveLen(2))
	})

	It("stops visiting early when the callback returns false", func() {
		m := newManager(time.Minute)
		for i := 0; i < 5; i++ {
			s, err := m.New("realm")
			Expect(err).NotTo(HaveOccurred())
			m.Put(s)
		}

		count := 0
		m.Visit(func(s *session.Session) bool {
			count++
			return false
		})
		Expect(count).To(Equal(1))
	})

	It("expires sessions once their idle timeout elapses", func() {
		m := newManager(20 * time.Millisecond)
		s, err := m.New("realm")
		Expect(err).NotTo(HaveOccurred())
		id := s.ID
		m.Put(s)

		m.StartExpiry()
		defer m.StopExpiry()

		Eventually(func() error {
			_, err := m.Get(id)
			return err
		}, time.Second, 10*time.Millisecond).Should(MatchError(session.ErrNotFound))
	})

	It("round-trips sessions through Save and Load", func() {
		m := newManager(time.Minute)
		s, err := m.New("realm-a")
		Expect(err).NotTo(HaveOccurred())
		s.User = "alice"
		s.WidgetSessions = append(s.WidgetSessions, session.WidgetSession{ID: "w1", Query: "q=1"})
		s.Cookies = append(s.Cookies, session.Cookie{Name: "sid", Value: "abc", Expires: time.Now().Add(time.Hour)})
		id := s.ID
		m.Put(s)

		var buf bytes.Buffer
		Expect(m.Save(&buf)).To(Succeed())

		loaded := newManager(time.Minute)
		Expect(loaded.Load(&buf)).To(Succeed())

		got, err := loaded.Get(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.User).To(Equal("alice"))
		Expect(got.WidgetSessions).To(HaveLen(1))
		Expect(got.Cookies).To(HaveLen(1))
		loaded.Put(got)
	})

	It("drops already-expired sessions on Load", func() {
		m := newManager(time.Minute)
		s, err := m.New("realm")
		Expect(err).NotTo(HaveOccurred())
		s.Expires = time.Now().Add(-time.Hour)
		id := s.ID
		m.Put(s)

		var buf bytes.Buffer
		Expect(m.Save(&buf)).To(Succeed())

		loaded := newManager(time.Minute)
		Expect(loaded.Load(&buf)).To(Succeed())

		_, err = loaded.Get(id)
		Expect(err).To(MatchError(session.ErrNotFound))
	})

	It("rejects a snapshot with a bad file magic", func() {
		loaded := newManager(time.Minute)
		err := loaded.Load(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
		Expect(err).To(HaveOccurred())
	})
})
