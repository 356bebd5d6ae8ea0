package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulink/classchat/internal/database"
)

func TestMarkRead(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	seedRoomMessage(t, repo, "m1", "room-1", "alice")
	seedRoomMessage(t, repo, "m2", "room-1", "alice")
	seedRoomMessage(t, repo, "m3", FloatingRoomId, "alice")

	cs, _ := newTestServer(t, repo)
	bob := student("bob")

	t.Run("missing room id", func(t *testing.T) {
		_, err := cs.MarkRead(bob, "")
		assertCode(t, err, CodeValidation)
	})

	t.Run("sweeps one room and returns the refreshed map", func(t *testing.T) {
		counts, err := cs.MarkRead(bob, "room-1")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{FloatingRoomId: 1}, counts)
	})

	t.Run("repeating the sweep changes nothing", func(t *testing.T) {
		counts, err := cs.MarkRead(bob, "room-1")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{FloatingRoomId: 1}, counts)
	})
}

func TestUnreadCounts(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	seedRoomMessage(t, repo, "m1", "room-1", "alice")
	seedRoomMessage(t, repo, "m2", FloatingRoomId, "bob")

	cs, _ := newTestServer(t, repo)

	t.Run("per-room map excludes own messages", func(t *testing.T) {
		counts, err := cs.UnreadCounts(student("bob"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"room-1": 1}, counts)
	})

	t.Run("single room count", func(t *testing.T) {
		count, err := cs.UnreadCount(student("alice"), FloatingRoomId)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("single room count requires a room id", func(t *testing.T) {
		_, err := cs.UnreadCount(student("alice"), "")
		assertCode(t, err, CodeValidation)
	})
}
