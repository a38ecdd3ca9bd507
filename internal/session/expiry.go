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
	"sort"
	"time"
)

// maxPurgeEntries and minPurgeFreed bound one purge pass.
const (
	maxPurgeEntries    = 256
	minPurgeFreed      = 16
	purgeFullThreshold = 0.99
)

// StartExpiry arms the 60s cleanup timer if the set is non-empty. It is
// re-armed from its own fire callback and disables itself once the set
// empties, the same self-rescheduling shape internal/cache uses.
func (m *Manager) StartExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armExpiryLocked()
}

func (m *Manager) armExpiryLocked() {
	if m.timerRunning || len(m.sessions) == 0 {
		return
	}
	m.timerRunning = true
	m.timer = time.AfterFunc(m.expiryPeriod, m.sweepExpired)
}

// sweepExpired drops every session whose Expires has passed, then
// re-arms itself if the set is still non-empty.
func (m *Manager) sweepExpired() {
	m.mu.Lock()
	m.timerRunning = false

	now := m.now()
	for id, s := range m.sessions {
		if s.Expires.Before(now) {
			delete(m.sessions, id)
			s.dpool.Close()
		}
	}

	m.armExpiryLocked()
	m.mu.Unlock()
}

// StopExpiry cancels the cleanup timer, if armed.
func (m *Manager) StopExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timerRunning = false
	}
}

// purgeLocked runs under the manager write-lock (the caller already
// holds it): it scores every session by
// expiry-soon + low-counter + large-dpool, deletes the highest-scoring
// group (at most maxPurgeEntries), and repeats once if fewer than
// minPurgeFreed were reclaimed and the region is still almost full.
func (m *Manager) purgeLocked() int {
	freed := m.purgePassLocked()
	if freed < minPurgeFreed && m.regionNearlyFullLocked() {
		freed += m.purgePassLocked()
	}
	return freed
}

type scored struct {
	id    string
	score float64
}

func (m *Manager) purgePassLocked() int {
	now := m.now()
	candidates := make([]scored, 0, len(m.sessions))
	for id, s := range m.sessions {
		candidates = append(candidates, scored{id: id, score: purgeScore(s, now)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	n := len(candidates)
	if n > maxPurgeEntries {
		n = maxPurgeEntries
	}
	for i := 0; i < n; i++ {
		_ = m.deleteLocked(candidates[i].id)
	}
	return n
}

// purgeScore combines how soon a session expires, how rarely it is
// used, and how much shm it holds, into one value where higher means
// "purge this first".
func purgeScore(s *Session, now time.Time) float64 {
	secondsToExpiry := s.Expires.Sub(now).Seconds()
	expirySoon := 1 / (1 + secondsToExpiry/60)
	lowCounter := 1 / float64(1+s.Counter)
	largeDpool := float64(s.dpool.Size())

	return expirySoon + lowCounter + largeDpool/float64(1<<20)
}

func (m *Manager) regionNearlyFullLocked() bool {
	total := m.region.TotalPages()
	if total == 0 {
		return false
	}
	free := m.region.FreePageCount()
	used := float64(total-free) / float64(total)
	return used >= purgeFullThreshold
}
