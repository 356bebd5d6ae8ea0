package server

import (
	"strings"
	"time"

	"github.com/edulink/classchat/internal/types"
)

const (
	defaultPageSize = 50
	maxSearchLimit  = 50
)

// LoadMessages fetches one descending page of room history. The cursor is
// the timestamp of the oldest message previously returned; zero means the
// newest page.
func (cs *ChatServer) LoadMessages(actor types.Identity, payload LoadMorePayload) (*types.MessagePage, error) {
	if payload.RoomId == "" {
		return nil, NewValidationError("room_id is required")
	}

	limit := payload.Limit
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	before := Now().Add(time.Second)
	if payload.Before > 0 {
		before = time.UnixMilli(payload.Before).UTC()
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	// fetch one extra row to learn whether an older page exists
	msgs, err := repo.Messages(payload.RoomId, before, limit+1)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	page := &types.MessagePage{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		page.HasMore = true
	}
	if n := len(page.Messages); n > 0 {
		cursor := page.Messages[n-1].CreatedAt
		page.NextCursor = &cursor
	}

	return page, nil
}

// SearchMessages runs a substring search over a room's history, newest
// first, capped at maxSearchLimit results.
func (cs *ChatServer) SearchMessages(actor types.Identity, roomId, query string) ([]types.Message, error) {
	if roomId == "" {
		return nil, NewValidationError("room_id is required")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("query is required")
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	msgs, err := repo.SearchMessages(roomId, query, maxSearchLimit)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return msgs, nil
}
