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

// Package session implements the shm-backed session store: a manager
// holding a readers-writer lock over a set of sessions, each guarded by
// its own lock and owning its own dpool sub-allocator.
package session

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/cm4all/beprox/internal/dpool"
	"github.com/cm4all/beprox/internal/shm"
)

// BucketCount fixes the hash-set geometry at ~16k buckets — the
// manager stores sessions in a plain Go map, but each session's bucket
// index (computed the same way a fixed hash-set would) is kept as
// metadata for introspection and tests, rather than driving a hand-rolled
// hash table a native map already outperforms.
const BucketCount = 16384

// DefaultExpiryInterval is the cleanup timer period.
const DefaultExpiryInterval = 60 * time.Second

// WidgetSession is one entry of a session's widget-session tree.
type WidgetSession struct {
	ID    string
	Query string
}

// Cookie is one entry of a session's cookie jar.
type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
}

// Session is one entry of the manager's set. Fields other than the
// lock/bookkeeping ones are only ever touched while the session's own
// lock is held.
type Session struct {
	mu sync.Mutex

	ID      string
	bucket  uint64
	Realm   string
	Expires time.Time
	Counter uint32
	Flags   [3]byte

	TranslateBlob []byte
	User          string
	UserExpires   time.Time
	Language      string

	WidgetSessions []WidgetSession
	Cookies        []Cookie

	dpool *dpool.Dpool
}

// Bucket returns the fixed hash-set bucket this session's id maps to.
func (s *Session) Bucket() uint64 { return s.bucket }

var (
	ErrNotFound = errors.New("session: not found")
	ErrOOM      = errors.New("session: dpool allocation failed")
)

// Manager is the shm-backed set of sessions. A process may hold
// at most one session lock at a time, and must release it before
// acquiring the manager's write-lock — the reverse order (manager then
// session) is what every operation below follows.
type Manager struct {
	mu sync.RWMutex

	region      *shm.Region
	sessions    map[string]*Session
	idleTimeout time.Duration
	clusterSize uint32
	clusterNode uint32
	idWords     int
	abandoned   bool

	timer        *time.Timer
	timerRunning bool
	expiryPeriod time.Duration

	now func() time.Time
}

// Config configures a new Manager.
type Config struct {
	Region      *shm.Region
	IdleTimeout time.Duration
	ClusterSize uint32
	ClusterNode uint32
	IDWords     int // 32-bit words per id; default 1 (8 hex chars)
}

// New returns an empty manager backed by cfg.Region.
func New(cfg Config) *Manager {
	words := cfg.IDWords
	if words <= 0 {
		words = 1
	}
	return &Manager{
		region:       cfg.Region,
		sessions:     make(map[string]*Session),
		idleTimeout:  cfg.IdleTimeout,
		clusterSize:  cfg.ClusterSize,
		clusterNode:  cfg.ClusterNode,
		idWords:      words,
		expiryPeriod: DefaultExpiryInterval,
		now:          time.Now,
	}
}

// generateID returns idWords*4 random bytes hex-encoded, with the last
// 32-bit word rewritten so that word % clusterSize == clusterNode, so a
// balancer in front can route follow-up requests to the owning node.
// The remaining bits of that word, and every earlier word, stay random
// entropy.
func (m *Manager) generateID() (string, error) {
	buf := make([]byte, m.idWords*4)
	// a v4 uuid is 16 random bytes; concatenate as many as the id needs
	for off := 0; off < len(buf); off += 16 {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		copy(buf[off:], u[:])
	}
	if m.clusterSize > 0 {
		last := buf[len(buf)-4:]
		val := binary.BigEndian.Uint32(last)
		binary.BigEndian.PutUint32(last, rewriteClusterWord(val, m.clusterSize, m.clusterNode))
	}
	return hex.EncodeToString(buf), nil
}

func rewriteClusterWord(val, clusterSize, clusterNode uint32) uint32 {
	rem := val % clusterSize
	n := int64(val) - int64(rem) + int64(clusterNode)
	for n > int64(math.MaxUint32) {
		n -= int64(clusterSize)
	}
	for n < 0 {
		n += int64(clusterSize)
	}
	return uint32(n)
}

// ClusterHash returns id's cluster routing word (the low bits of the
// last word's value modulo cluster_size), as used by routing layers to
// pin subsequent requests to the owning node.
func ClusterHash(id string, clusterSize uint32) (uint32, error) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) < 4 || clusterSize == 0 {
		return 0, errors.New("session: malformed id")
	}
	val := binary.BigEndian.Uint32(raw[len(raw)-4:])
	return val % clusterSize, nil
}

// New allocates a fresh session under realm, retrying once via Purge if
// the initial dpool allocation fails.
func (m *Manager) New(realm string) (*Session, error) {
	m.mu.Lock()
	s, err := m.newLocked(realm)
	if errors.Is(err, ErrOOM) {
		m.purgeLocked()
		s, err = m.newLocked(realm)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	return s, nil
}

func (m *Manager) newLocked(realm string) (*Session, error) {
	dp, err := dpool.New(m.region)
	if err != nil {
		return nil, ErrOOM
	}

	var id string
	for {
		id, err = m.generateID()
		if err != nil {
			dp.Close()
			return nil, err
		}
		if _, exists := m.sessions[id]; !exists {
			break
		}
	}

	s := &Session{
		ID:      id,
		bucket:  bucketFor(id),
		Realm:   realm,
		Expires: m.now().Add(m.idleTimeout),
		dpool:   dp,
	}
	m.sessions[id] = s
	return s, nil
}

// bucketFor computes the fixed hash-set bucket index for a session id.
func bucketFor(id string) uint64 {
	return xxhash.Sum64String(id) % BucketCount
}

// Get finds id under the manager read-lock, then takes the session's
// own lock, bumps its expiry and access counter, and returns it with
// the manager lock already released.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	s.Expires = m.now().Add(m.idleTimeout)
	s.Counter++
	return s, nil
}

// Put releases s's lock. Every 1024th access, if s's dpool has
// accumulated enough freed allocations, it is rebuilt under the
// manager write-lock.
func (m *Manager) Put(s *Session) {
	needsDefrag := s.Counter%1024 == 0 && s.dpool.Fragmented()
	s.mu.Unlock()

	if needsDefrag {
		m.defragment(s)
	}
}

// defragment rebuilds s's dpool from scratch: under the manager
// write-lock and s's own lock, a fresh pool is allocated and swapped in
// and the old pool is released. Session fields live on the Go heap, so
// nothing is copied between the pools.
func (m *Manager) defragment(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, err := dpool.New(m.region)
	if err != nil {
		return // leave the fragmented pool in place; retried on the next threshold hit
	}
	old := s.dpool
	s.dpool = fresh
	old.Close()
}

// Delete removes id from the set under the manager write-lock and
// destroys its session and dpool. The caller must not be holding id's
// session lock.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Manager) deleteLocked(id string) error {
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	s.dpool.Close()
	return nil
}

// Visit iterates every non-expired session under the manager read-lock,
// taking each one's own lock around the callback and releasing it
// before moving on. Visiting stops early if cb returns false.
func (m *Manager) Visit(cb func(*Session) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	for _, s := range m.sessions {
		if s.Expires.Before(now) {
			continue
		}
		s.mu.Lock()
		cont := cb(s)
		s.mu.Unlock()
		if !cont {
			return
		}
	}
}

// Len reports the number of sessions currently held, expired or not.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Abandoned reports whether a prior worker crash left the set
// potentially corrupt.
func (m *Manager) Abandoned() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.abandoned
}

// MarkAbandoned flags the set as potentially corrupt.
func (m *Manager) MarkAbandoned() {
	m.mu.Lock()
	m.abandoned = true
	m.mu.Unlock()
}
