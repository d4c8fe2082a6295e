package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a single-process SessionStore. It applies the same
// per-operation serialization as redis through one mutex, which is enough at
// the call rates the coordinators produce.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]memoryValue
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	sets    map[string]map[string]struct{}
}

type memoryValue struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]memoryValue),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	v, ok := s.strings[key]
	s.mu.RUnlock()

	if !ok {
		return "", ErrNotFound
	}
	if !v.expiresAt.IsZero() && time.Now().After(v.expiresAt) {
		s.mu.Lock()
		delete(s.strings, key)
		s.mu.Unlock()
		return "", ErrNotFound
	}
	return v.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.strings[key] = v
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.zsets, key)
		delete(s.sets, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.hashes[key]; ok {
		if v, ok := h[field]; ok {
			return v, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hashes[key]; ok {
		for _, f := range fields {
			delete(h, f)
		}
		if len(h) == 0 {
			delete(s.hashes, key)
		}
	}
	return nil
}

func (s *MemoryStore) HExists(_ context.Context, key, field string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[key][field]
	return ok, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, members ...ZMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	for _, m := range members {
		z[m.Member] = m.Score
	}
	return nil
}

func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zsets[key]; ok {
		for _, m := range members {
			delete(z, m)
		}
		if len(z) == 0 {
			delete(s.zsets, key)
		}
	}
	return nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	sorted := s.sortedMembers(key)
	s.mu.RUnlock()

	n := int64(len(sorted))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}

	out := make([]string, 0, stop-start+1)
	for _, m := range sorted[start : stop+1] {
		out = append(out, m.Member)
	}
	return out, nil
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	s.mu.RLock()
	sorted := s.sortedMembers(key)
	s.mu.RUnlock()

	var out []string
	for _, m := range sorted {
		if m.Score >= min && m.Score <= max {
			out = append(out, m.Member)
		}
	}
	return out, nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

// sortedMembers must be called with at least the read lock held.
func (s *MemoryStore) sortedMembers(key string) []ZMember {
	z := s.zsets[key]
	out := make([]ZMember, 0, len(z))
	for m, score := range z {
		out = append(out, ZMember{Member: m, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		for _, m := range members {
			delete(set, m)
		}
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[key])), nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	collect := func(key string) {
		if strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}
	now := time.Now()
	for key, v := range s.strings {
		if !v.expiresAt.IsZero() && now.After(v.expiresAt) {
			continue
		}
		collect(key)
	}
	for key := range s.hashes {
		collect(key)
	}
	for key := range s.zsets {
		collect(key)
	}
	for key := range s.sets {
		collect(key)
	}

	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}
