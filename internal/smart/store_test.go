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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	newStore := func() *SessionStore {
		store := NewSessionStore(time.Hour)
		store.store.now = func() time.Time { return now }
		return store
	}
	t.Run("get", func(t *testing.T) {
		store := newStore()
		session := NewSession("1", "http://example.com/fhir", "123", nil)
		store.Put(session)

		actual, err := store.Get("1")

		require.NoError(t, err)
		assert.Same(t, session, actual)
	})
	t.Run("not found", func(t *testing.T) {
		_, err := newStore().Get("1")

		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("expired sessions are removed", func(t *testing.T) {
		store := newStore()
		store.Put(NewSession("1", "http://example.com/fhir", "123", nil))
		store.store.now = func() time.Time { return now.Add(2 * time.Hour) }

		_, err := store.Get("1")

		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.Empty(t, store.store.entries)
	})
	t.Run("delete", func(t *testing.T) {
		store := newStore()
		store.Put(NewSession("1", "http://example.com/fhir", "123", nil))

		store.Delete("1")

		_, err := store.Get("1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("cleanup", func(t *testing.T) {
		store := newStore()
		store.Put(NewSession("old", "http://example.com/fhir", "123", nil))
		store.store.now = func() time.Time { return now.Add(30 * time.Minute) }
		store.Put(NewSession("new", "http://example.com/fhir", "123", nil))
		store.store.now = func() time.Time { return now.Add(90 * time.Minute) }

		removed := store.Cleanup()

		assert.Equal(t, 1, removed)
		_, err := store.Get("new")
		assert.NoError(t, err)
	})
}

func TestTTLStore_Consume(t *testing.T) {
	store := newTTLStore[string](time.Minute)
	store.put("state", "verifier")

	value, ok := store.get("state", true)
	require.True(t, ok)
	assert.Equal(t, "verifier", value)

	_, ok = store.get("state", true)
	assert.False(t, ok)
}
