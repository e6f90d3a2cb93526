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

package report

import (
	"sync"
	"time"
)

// defaultMaxArtifacts bounds the store when the caller passes no limit.
const defaultMaxArtifacts = 64

// Artifact is one downloadable byte blob.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ArtifactStore keeps artifacts in memory until they age out. Insertion
// order doubles as eviction order once the bound is hit.
type ArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
	order     []string
	max       int
}

// NewArtifactStore creates a store holding at most max artifacts. max <= 0
// selects the default bound.
func NewArtifactStore(max int) *ArtifactStore {
	if max <= 0 {
		max = defaultMaxArtifacts
	}
	return &ArtifactStore{
		artifacts: make(map[string]Artifact),
		max:       max,
	}
}

// Put stores an artifact under its own name, evicting the oldest when full.
func (s *ArtifactStore) Put(a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[a.Name]; !exists {
		for len(s.order) >= s.max {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.artifacts, oldest)
		}
		s.order = append(s.order, a.Name)
	}
	s.artifacts[a.Name] = a
}

// Get returns the named artifact and whether it exists.
func (s *ArtifactStore) Get(name string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	return a, ok
}

// Len reports how many artifacts are stored.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
