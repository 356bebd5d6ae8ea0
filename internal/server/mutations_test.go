package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/types"
)

func seedRoomMessage(t *testing.T, repo *database.MemoryTenantRepository, id, roomId, senderId string) {
	t.Helper()
	err := repo.CreateMessage(types.Message{
		Id:        id,
		RoomId:    roomId,
		Sender:    types.Sender{Id: senderId, Name: senderId, Role: types.RoleStudent},
		Content:   "message " + id,
		CreatedAt: Now(),
	})
	require.NoError(t, err)
}

func assertCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, code, chatErr.Code)
}

func TestEditMessage(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	seedRoomMessage(t, repo, "m1", FloatingRoomId, "alice")

	cs, _ := newTestServer(t, repo)
	alice := connect(t, cs, student("alice"))
	bob := connect(t, cs, student("bob"))
	drainEvents(alice)

	t.Run("empty content", func(t *testing.T) {
		_, err := cs.EditMessage(alice.identity, "m1", "   ")
		assertCode(t, err, CodeValidation)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := cs.EditMessage(alice.identity, "missing", "new text")
		assertCode(t, err, CodeNotFound)
	})

	t.Run("only the sender may edit", func(t *testing.T) {
		_, err := cs.EditMessage(bob.identity, "m1", "hijacked")
		assertCode(t, err, CodeUnauthorized)

		msg, err := repo.GetMessage("m1")
		require.NoError(t, err)
		assert.Equal(t, "message m1", msg.Content, "a rejected edit must leave the message untouched")
	})

	t.Run("sender edit is stored and broadcast", func(t *testing.T) {
		edited, err := cs.EditMessage(alice.identity, "m1", "  corrected  ")
		require.NoError(t, err)
		assert.Equal(t, "corrected", edited.Content)
		assert.Equal(t, FloatingRoomId, edited.RoomId)

		msg, err := repo.GetMessage("m1")
		require.NoError(t, err)
		assert.Equal(t, "corrected", msg.Content)
		assert.True(t, msg.Edited)

		ev := nextEvent(t, bob)
		assert.Equal(t, EvMessageEdited, ev.Event)
		assert.Equal(t, edited, ev.Data)
	})
}

func TestDeleteMessage(t *testing.T) {
	newFixture := func(t *testing.T) (*ChatServer, *database.MemoryTenantRepository, *Client, *Client) {
		repo := database.NewMemoryTenantRepository()
		_, err := repo.CreateRoom(database.CreateRoomParams{Id: "room-1", Name: "Math"})
		require.NoError(t, err)
		seedRoomMessage(t, repo, "floating-msg", FloatingRoomId, "alice")
		seedRoomMessage(t, repo, "room-msg", "room-1", "alice")

		cs, _ := newTestServer(t, repo)
		alice := connect(t, cs, student("alice"))
		admin := connect(t, cs, types.Identity{
			UserId:      "principal",
			TenantId:    testTenant,
			Role:        types.RoleSchoolAdmin,
			Username:    "principal",
			DisplayName: "The Principal",
		})
		drainEvents(alice)
		return cs, repo, alice, admin
	}

	t.Run("sender deletes their own message", func(t *testing.T) {
		cs, repo, alice, _ := newFixture(t)

		require.NoError(t, cs.DeleteMessage(alice.identity, "floating-msg"))

		_, err := repo.GetMessage("floating-msg")
		assert.ErrorIs(t, err, database.ErrNotFound)

		ev := nextEvent(t, alice)
		assert.Equal(t, EvMessageDeleted, ev.Event)
		assert.Equal(t, MessageDeletedEvent{MessageId: "floating-msg", RoomId: FloatingRoomId}, ev.Data)
	})

	t.Run("school admin moderates the floating room", func(t *testing.T) {
		cs, repo, _, admin := newFixture(t)

		require.NoError(t, cs.DeleteMessage(admin.identity, "floating-msg"))

		_, err := repo.GetMessage("floating-msg")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("admin privilege does not extend to persistent rooms", func(t *testing.T) {
		cs, repo, _, admin := newFixture(t)

		err := cs.DeleteMessage(admin.identity, "room-msg")
		assertCode(t, err, CodeUnauthorized)

		_, err = repo.GetMessage("room-msg")
		assert.NoError(t, err)
	})

	t.Run("another student may not delete", func(t *testing.T) {
		cs, _, _, _ := newFixture(t)
		mallory := connect(t, cs, student("mallory"))

		err := cs.DeleteMessage(mallory.identity, "floating-msg")
		assertCode(t, err, CodeUnauthorized)
	})

	t.Run("unknown message", func(t *testing.T) {
		cs, _, alice, _ := newFixture(t)

		err := cs.DeleteMessage(alice.identity, "missing")
		assertCode(t, err, CodeNotFound)
	})
}

func TestToggleReactionEngine(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	seedRoomMessage(t, repo, "m1", FloatingRoomId, "alice")

	cs, _ := newTestServer(t, repo)
	alice := connect(t, cs, student("alice"))
	bob := connect(t, cs, student("bob"))
	drainEvents(alice)

	t.Run("missing emoji", func(t *testing.T) {
		_, err := cs.ToggleReaction(bob.identity, "m1", "")
		assertCode(t, err, CodeValidation)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := cs.ToggleReaction(bob.identity, "missing", "👍")
		assertCode(t, err, CodeNotFound)
	})

	t.Run("toggle on broadcasts the full map", func(t *testing.T) {
		updated, err := cs.ToggleReaction(bob.identity, "m1", "👍")
		require.NoError(t, err)
		assert.Equal(t, []types.Reactor{{UserId: "bob", Name: "bob"}}, updated.Reactions["👍"])

		ev := nextEvent(t, alice)
		assert.Equal(t, EvMessageReactionUpdate, ev.Event)
		assert.Equal(t, updated, ev.Data)
		drainEvents(bob)
	})

	t.Run("toggle off empties the map", func(t *testing.T) {
		updated, err := cs.ToggleReaction(bob.identity, "m1", "👍")
		require.NoError(t, err)
		assert.Empty(t, updated.Reactions)
	})

	t.Run("reaction class is rate limited", func(t *testing.T) {
		cs.limiter = NewRateLimiter(map[OpClass]LimitConfig{
			OpReaction: {Ceiling: 1, Window: time.Minute},
		})

		_, err := cs.ToggleReaction(bob.identity, "m1", "🎉")
		require.NoError(t, err)

		_, err = cs.ToggleReaction(bob.identity, "m1", "🎉")
		assertCode(t, err, CodeRateLimited)
	})
}

func TestPinMessageEngine(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		seedRoomMessage(t, repo, id, FloatingRoomId, "alice")
	}

	cs, _ := newTestServer(t, repo)
	teacher := connect(t, cs, types.Identity{
		UserId:      "t-1",
		TenantId:    testTenant,
		Role:        types.RoleTeacher,
		Username:    "smith",
		DisplayName: "Ms Smith",
	})
	observer := connect(t, cs, student("bob"))
	drainEvents(teacher)

	t.Run("pin broadcasts the full ordered list", func(t *testing.T) {
		pinned, err := cs.PinMessage(teacher.identity, "m1")
		require.NoError(t, err)
		require.Len(t, pinned.Messages, 1)
		assert.Equal(t, "m1", pinned.Messages[0].Id)
		assert.Equal(t, "t-1", pinned.Messages[0].PinnedBy)

		ev := nextEvent(t, observer)
		assert.Equal(t, EvPinnedMessagesUpdated, ev.Event)
		assert.Equal(t, pinned, ev.Data)
		drainEvents(teacher)
	})

	t.Run("pinning past the cap is rejected", func(t *testing.T) {
		_, err := cs.PinMessage(teacher.identity, "m2")
		require.NoError(t, err)
		_, err = cs.PinMessage(teacher.identity, "m3")
		require.NoError(t, err)

		_, err = cs.PinMessage(teacher.identity, "m4")
		assertCode(t, err, CodeLimitExceeded)
		drainEvents(teacher)
		drainEvents(observer)
	})

	t.Run("unpin frees a slot and rebroadcasts", func(t *testing.T) {
		pinned, err := cs.UnpinMessage(teacher.identity, "m1")
		require.NoError(t, err)
		assert.Len(t, pinned.Messages, 2)

		ev := nextEvent(t, observer)
		assert.Equal(t, EvPinnedMessagesUpdated, ev.Event)

		_, err = cs.PinMessage(teacher.identity, "m4")
		require.NoError(t, err)
	})

	t.Run("query does not broadcast", func(t *testing.T) {
		drainEvents(teacher)
		drainEvents(observer)

		pinned, err := cs.PinnedMessages(teacher.identity, FloatingRoomId)
		require.NoError(t, err)
		assert.Len(t, pinned.Messages, 3)
		assertNoEvent(t, observer)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := cs.PinMessage(teacher.identity, "missing")
		assertCode(t, err, CodeNotFound)
	})
}
