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

package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/pkg/fetch"
)

func source(path, content string) *fetch.AggregatedSource {
	src := &fetch.AggregatedSource{}
	src.Add(path, content)
	return src
}

func TestKeyIsContentAddressed(t *testing.T) {
	a := Key(source("app.py", "print('x')"))
	b := Key(source("app.py", "print('x')"))
	c := Key(source("app.py", "print('y')"))

	assert.Equal(t, a, b, "identical source should produce identical keys")
	assert.NotEqual(t, a, c, "different source should produce different keys")
	assert.Len(t, a, 64, "key should be a hex sha-256 digest")
}

func TestPutGet(t *testing.T) {
	store := New(0)
	src := source("app.py", "print('x')")
	key := Key(src)

	store.Put(key, &Entry{Source: src})

	entry := store.Get(key)
	require.NotNil(t, entry, "stored session should be retrievable")
	assert.Equal(t, src, entry.Source, "source should round-trip")
	assert.False(t, entry.CreatedAt.IsZero(), "creation time should be stamped")

	assert.Nil(t, store.Get("unknown"), "unknown keys return nil")
}

func TestEvictsOldestWhenFull(t *testing.T) {
	store := New(2)
	for i := 0; i < 3; i++ {
		src := source("app.py", fmt.Sprintf("print(%d)", i))
		store.Put(Key(src), &Entry{Source: src})
	}

	assert.Equal(t, 2, store.Len(), "store should stay at its bound")
	assert.Nil(t, store.Get(Key(source("app.py", "print(0)"))), "oldest session should be evicted")
	assert.NotNil(t, store.Get(Key(source("app.py", "print(2)"))), "newest session should survive")
}

func TestPutRefreshesExistingKey(t *testing.T) {
	store := New(2)
	src := source("app.py", "print('x')")
	key := Key(src)

	store.Put(key, &Entry{Source: src})
	store.Put(key, &Entry{Source: src})

	assert.Equal(t, 1, store.Len(), "re-putting a key should not consume another slot")
}
