package server

import (
	"github.com/edulink/classchat/internal/types"
)

// MarkRead sweeps the room: the caller is added to the read set of every
// message authored by someone else. Idempotent; the sweep is one atomic
// storage operation. Returns the caller's refreshed unread map.
func (cs *ChatServer) MarkRead(actor types.Identity, roomId string) (map[string]int, error) {
	if roomId == "" {
		return nil, NewValidationError("room_id is required")
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	if err := repo.MarkRead(roomId, actor.UserId); err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	counts, err := repo.UnreadCounts(actor.UserId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return counts, nil
}

// UnreadCounts returns the caller's per-room unread map: messages not
// authored by them and not yet carrying them in the read set.
func (cs *ChatServer) UnreadCounts(actor types.Identity) (map[string]int, error) {
	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	counts, err := repo.UnreadCounts(actor.UserId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return counts, nil
}

// UnreadCount is UnreadCounts scoped to one room.
func (cs *ChatServer) UnreadCount(actor types.Identity, roomId string) (int, error) {
	if roomId == "" {
		return 0, NewValidationError("room_id is required")
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return 0, asChatError(err)
	}

	count, err := repo.UnreadCount(roomId, actor.UserId)
	if err != nil {
		return 0, cs.storeErr(actor.TenantId, err)
	}

	return count, nil
}
