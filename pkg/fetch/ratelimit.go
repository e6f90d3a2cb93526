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

package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ⏱️ Limiter spaces remote API calls within one fetch session. No two
// throttled calls begin less than the configured interval apart. State is
// per-session only: concurrent fetches each carry their own Limiter, so this
// protects against provider-side 429/403 for a single fetch, not against
// aggregate load.
type Limiter struct {
	rl       *rate.Limiter
	requests int
}

// 🏭 NewLimiter creates a limiter with the given minimum spacing.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		rl: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// ⏳ Throttle blocks until the interval since the previous throttled call has
// elapsed, then records the call. The first call never waits.
func (l *Limiter) Throttle(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}
	l.requests++
	return nil
}

// 🔢 Requests reports how many throttled calls were made. Diagnostic only;
// it plays no part in the actual limiting.
func (l *Limiter) Requests() int {
	return l.requests
}
