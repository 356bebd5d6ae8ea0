package server

import (
	"strings"

	"github.com/edulink/classchat/internal/stats"
	"github.com/edulink/classchat/internal/types"
)

// EditMessage rewrites a message's content. Only the original sender may
// edit. The edit delta is broadcast to the room; state is untouched on any
// failure.
func (cs *ChatServer) EditMessage(actor types.Identity, messageId, content string) (*MessageEditedEvent, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, NewValidationError("edited content cannot be empty")
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	msg, err := repo.GetMessage(messageId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	if msg.Sender.Id != actor.UserId {
		return nil, NewUnauthorizedError("only the sender may edit a message")
	}

	editedAt := Now()
	if err := repo.UpdateMessageContent(messageId, actor.UserId, content, editedAt); err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	ev := &MessageEditedEvent{
		MessageId: messageId,
		RoomId:    msg.RoomId,
		Content:   content,
		EditedAt:  editedAt,
	}
	cs.broadcastToRoom(actor.TenantId, msg.RoomId, NewEvent(EvMessageEdited, ev))

	return ev, nil
}

// DeleteMessage removes a message. The original sender may always delete;
// in the floating room a school-admin may delete anyone's message.
func (cs *ChatServer) DeleteMessage(actor types.Identity, messageId string) error {
	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return asChatError(err)
	}

	msg, err := repo.GetMessage(messageId)
	if err != nil {
		return cs.storeErr(actor.TenantId, err)
	}

	authorized := msg.Sender.Id == actor.UserId ||
		(msg.RoomId == FloatingRoomId && actor.Role == types.RoleSchoolAdmin)
	if !authorized {
		return NewUnauthorizedError("not allowed to delete this message")
	}

	if err := repo.DeleteMessage(messageId); err != nil {
		return cs.storeErr(actor.TenantId, err)
	}

	cs.broadcastToRoom(actor.TenantId, msg.RoomId, NewEvent(EvMessageDeleted, MessageDeletedEvent{
		MessageId: messageId,
		RoomId:    msg.RoomId,
	}))

	return nil
}

// ToggleReaction flips the actor's reaction on a message. A user holds at
// most one emoji per message; toggling the same emoji removes it, toggling
// a different one moves it. The full resulting map is broadcast.
func (cs *ChatServer) ToggleReaction(actor types.Identity, messageId, emoji string) (*ReactionUpdatedEvent, error) {
	if emoji == "" {
		return nil, NewValidationError("emoji is required")
	}

	res := cs.limiter.Check(actor, OpReaction)
	if !res.Allowed {
		cs.stats.Incr(stats.RateLimitDenials)
		return nil, NewRateLimitedError(res.ResetInMs)
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	msg, err := repo.GetMessage(messageId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	reactions, err := repo.ToggleReaction(messageId, emoji, types.Reactor{
		UserId: actor.UserId,
		Name:   actor.DisplayName,
	})
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	ev := &ReactionUpdatedEvent{
		MessageId: messageId,
		RoomId:    msg.RoomId,
		Reactions: reactions,
	}
	cs.broadcastToRoom(actor.TenantId, msg.RoomId, NewEvent(EvMessageReactionUpdate, ev))

	return ev, nil
}

// PinMessage pins a message, subject to the per-room cap. The broadcast
// carries the room's full pinned list ordered most-recently-pinned first,
// not a delta.
func (cs *ChatServer) PinMessage(actor types.Identity, messageId string) (*PinnedMessagesEvent, error) {
	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	msg, err := repo.GetMessage(messageId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	if err := repo.PinMessage(messageId, actor.UserId, Now()); err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return cs.broadcastPinned(actor.TenantId, msg.RoomId, repo.PinnedMessages)
}

// UnpinMessage always succeeds for an existing message.
func (cs *ChatServer) UnpinMessage(actor types.Identity, messageId string) (*PinnedMessagesEvent, error) {
	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	msg, err := repo.GetMessage(messageId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	if err := repo.UnpinMessage(messageId); err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return cs.broadcastPinned(actor.TenantId, msg.RoomId, repo.PinnedMessages)
}

// PinnedMessages returns the room's ordered pinned list without mutating
// anything.
func (cs *ChatServer) PinnedMessages(actor types.Identity, roomId string) (*PinnedMessagesEvent, error) {
	if roomId == "" {
		return nil, NewValidationError("room_id is required")
	}

	repo, err := cs.repo(actor.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	pinned, err := repo.PinnedMessages(roomId)
	if err != nil {
		return nil, cs.storeErr(actor.TenantId, err)
	}

	return &PinnedMessagesEvent{RoomId: roomId, Messages: pinned}, nil
}

func (cs *ChatServer) broadcastPinned(tenantId, roomId string, list func(string) ([]types.Message, error)) (*PinnedMessagesEvent, error) {
	pinned, err := list(roomId)
	if err != nil {
		return nil, cs.storeErr(tenantId, err)
	}

	ev := &PinnedMessagesEvent{RoomId: roomId, Messages: pinned}
	cs.broadcastToRoom(tenantId, roomId, NewEvent(EvPinnedMessagesUpdated, ev))

	return ev, nil
}
