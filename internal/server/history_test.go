package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/types"
)

func TestLoadMessages(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	base := time.Now().UTC().Add(-time.Hour).Round(time.Millisecond)
	for i := 0; i < 7; i++ {
		err := repo.CreateMessage(types.Message{
			Id:        "m" + string(rune('1'+i)),
			RoomId:    "room-1",
			Sender:    types.Sender{Id: "alice", Name: "alice"},
			Content:   "message",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	cs, _ := newTestServer(t, repo)
	alice := student("alice")

	t.Run("missing room id", func(t *testing.T) {
		_, err := cs.LoadMessages(alice, LoadMorePayload{})
		assertCode(t, err, CodeValidation)
	})

	t.Run("newest page first with a continuation cursor", func(t *testing.T) {
		page, err := cs.LoadMessages(alice, LoadMorePayload{RoomId: "room-1", Limit: 3})
		require.NoError(t, err)
		require.Len(t, page.Messages, 3)
		assert.Equal(t, "m7", page.Messages[0].Id)
		assert.Equal(t, "m5", page.Messages[2].Id)
		assert.True(t, page.HasMore)
		require.NotNil(t, page.NextCursor)
		assert.Equal(t, page.Messages[2].CreatedAt, *page.NextCursor)
	})

	t.Run("cursor continues where the last page stopped", func(t *testing.T) {
		first, err := cs.LoadMessages(alice, LoadMorePayload{RoomId: "room-1", Limit: 3})
		require.NoError(t, err)

		second, err := cs.LoadMessages(alice, LoadMorePayload{
			RoomId: "room-1",
			Limit:  3,
			Before: first.NextCursor.UnixMilli(),
		})
		require.NoError(t, err)
		require.Len(t, second.Messages, 3)
		assert.Equal(t, "m4", second.Messages[0].Id)
		assert.Equal(t, "m2", second.Messages[2].Id)
		assert.True(t, second.HasMore)
	})

	t.Run("final page has no continuation", func(t *testing.T) {
		page, err := cs.LoadMessages(alice, LoadMorePayload{RoomId: "room-1", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page.Messages, 7)
		assert.False(t, page.HasMore)
	})

	t.Run("empty room", func(t *testing.T) {
		page, err := cs.LoadMessages(alice, LoadMorePayload{RoomId: "room-empty"})
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.False(t, page.HasMore)
		assert.Nil(t, page.NextCursor)
	})

	t.Run("out-of-range limit falls back to the default page size", func(t *testing.T) {
		mockRepo := &database.MockTenantRepository{}
		mockRepo.Test(t)
		mockRepo.On("Messages", "room-1", mock.Anything, defaultPageSize+1).Return([]types.Message{}, nil)

		mockCs, _ := newTestServer(t, mockRepo)
		_, err := mockCs.LoadMessages(alice, LoadMorePayload{RoomId: "room-1", Limit: 5000})
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestSearchMessages(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	seedRoomMessage(t, repo, "m1", "room-1", "alice")
	require.NoError(t, repo.CreateMessage(types.Message{
		Id:        "m2",
		RoomId:    "room-1",
		Sender:    types.Sender{Id: "bob", Name: "bob"},
		Content:   "Homework is due Friday",
		CreatedAt: Now(),
	}))

	cs, _ := newTestServer(t, repo)
	alice := student("alice")

	t.Run("missing room id", func(t *testing.T) {
		_, err := cs.SearchMessages(alice, "", "homework")
		assertCode(t, err, CodeValidation)
	})

	t.Run("blank query", func(t *testing.T) {
		_, err := cs.SearchMessages(alice, "room-1", "   ")
		assertCode(t, err, CodeValidation)
	})

	t.Run("substring match is case insensitive", func(t *testing.T) {
		msgs, err := cs.SearchMessages(alice, "room-1", "homework")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m2", msgs[0].Id)
	})

	t.Run("no matches", func(t *testing.T) {
		msgs, err := cs.SearchMessages(alice, "room-1", "nothing like this")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
