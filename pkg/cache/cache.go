// Copyright 2025 repolens authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache holds analysis results keyed by a digest of the analyzed
// source. The digest doubles as the public cache key: follow-up operations
// (test generation, document export) name the session they act on with it
// instead of re-uploading the code.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/repolens/repolens/pkg/analyzer"
	"github.com/repolens/repolens/pkg/fetch"
)

// defaultMaxEntries bounds the store when the caller passes no limit.
const defaultMaxEntries = 128

// Entry is one cached analysis session.
type Entry struct {
	Source    *fetch.AggregatedSource
	Analysis  *analyzer.Analysis
	CreatedAt time.Time
}

// Store is a bounded in-memory session store. Insertion order doubles as
// eviction order once the bound is hit.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	max     int
}

// New creates a Store holding at most max entries. max <= 0 selects the
// default bound.
func New(max int) *Store {
	if max <= 0 {
		max = defaultMaxEntries
	}
	return &Store{
		entries: make(map[string]*Entry),
		max:     max,
	}
}

// Key derives the cache key for a source set. Identical concatenated source
// always yields the same key, so re-analyzing the same code hits the cache.
func Key(src *fetch.AggregatedSource) string {
	sum := sha256.Sum256([]byte(src.Concatenated()))
	return hex.EncodeToString(sum[:])
}

// Put stores an entry under key, evicting the oldest entry when full.
// Storing an existing key refreshes it without consuming a slot.
func (s *Store) Put(key string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		for len(s.order) >= s.max {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
		s.order = append(s.order, key)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries[key] = entry
}

// Get returns the entry for key, or nil when the session is unknown.
func (s *Store) Get(key string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// Len reports how many sessions are cached.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
