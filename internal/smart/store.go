/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package smart

import (
	"sync"
	"time"
)

// ttlStore is a thread-safe in-memory map whose entries expire ttl after they were added.
type ttlStore[T any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[T]
	ttl     time.Duration
	now     func() time.Time
}

type ttlEntry[T any] struct {
	value     T
	createdAt time.Time
}

func newTTLStore[T any](ttl time.Duration) *ttlStore[T] {
	return &ttlStore[T]{
		entries: make(map[string]ttlEntry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *ttlStore[T]) put(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = ttlEntry[T]{value: value, createdAt: s.now()}
}

func (s *ttlStore[T]) get(key string, consume bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	entry, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if s.now().Sub(entry.createdAt) > s.ttl {
		delete(s.entries, key)
		return zero, false
	}
	if consume {
		delete(s.entries, key)
	}
	return entry.value, true
}

func (s *ttlStore[T]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// cleanup removes expired entries and returns how many were removed.
func (s *ttlStore[T]) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if now.Sub(entry.createdAt) > s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
