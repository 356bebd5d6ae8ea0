package server

import (
	"strings"

	"github.com/teris-io/shortid"

	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/stats"
	"github.com/edulink/classchat/internal/types"
)

const mentionPreviewLen = 100

func (cs *ChatServer) repo(tenantId string) (database.TenantRepository, error) {
	return cs.tenants.Acquire(tenantId)
}

// storeErr maps a storage failure onto the wire taxonomy and reports it to
// the registry, so a broken tenant connection gets redialed on the next use.
func (cs *ChatServer) storeErr(tenantId string, err error) *ChatError {
	cs.tenants.ObserveError(tenantId, err)
	return asChatError(err)
}

// JoinRoom makes roomId the session's current room, replacing any previous
// persistent-room membership. The floating room needs no join; joining it
// anyway is accepted and clears the persistent-room membership.
func (cs *ChatServer) JoinRoom(c *Client, roomId string) error {
	if roomId == "" {
		return NewValidationError("room_id is required")
	}

	if roomId == FloatingRoomId {
		c.setCurrentRoom("")
		return nil
	}

	repo, err := cs.repo(c.identity.TenantId)
	if err != nil {
		return asChatError(err)
	}

	if _, err := repo.GetRoom(roomId); err != nil {
		return cs.storeErr(c.identity.TenantId, err)
	}

	c.setCurrentRoom(roomId)
	cs.log.Printf("user %q joined room %q", c.identity.UserId, roomId)

	return nil
}

// SendMessage validates, persists and distributes one message. The
// broadcast reaches every session currently joined to the room, including
// the sender's. Unread recomputation and mention notifications are
// best-effort: a failure for one recipient never aborts the others, and
// never fails the send.
func (cs *ChatServer) SendMessage(sender types.Identity, payload SendMessagePayload) (*types.Message, error) {
	if payload.RoomId == "" {
		return nil, NewValidationError("room_id is required")
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" && payload.Attachment == nil {
		return nil, NewValidationError("message requires content or an attachment")
	}

	res := cs.limiter.Check(sender, OpMessage)
	if !res.Allowed {
		cs.stats.Incr(stats.RateLimitDenials)
		return nil, NewRateLimitedError(res.ResetInMs)
	}

	repo, err := cs.repo(sender.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	if payload.RoomId != FloatingRoomId {
		if _, err := repo.GetRoom(payload.RoomId); err != nil {
			return nil, cs.storeErr(sender.TenantId, err)
		}
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, NewInternalError(err)
	}

	msg := types.Message{
		Id:       id,
		RoomId:   payload.RoomId,
		TenantId: sender.TenantId,
		Sender: types.Sender{
			Id:   sender.UserId,
			Name: sender.DisplayName,
			Role: sender.Role,
		},
		Content:    content,
		Attachment: payload.Attachment,
		ReplyTo:    payload.ReplyTo,
		Mentions:   payload.Mentions,
		CreatedAt:  Now(),
		ReadBy:     []string{},
		Reactions:  map[string][]types.Reactor{},
	}

	if err := repo.CreateMessage(msg); err != nil {
		return nil, cs.storeErr(sender.TenantId, err)
	}

	cs.stats.Incr(stats.MessagesSent)

	cs.broadcastToRoom(sender.TenantId, msg.RoomId, NewEvent(EvNewMessage, msg))
	cs.fanOutUnreadCounts(repo, sender.TenantId, sender.UserId)
	cs.notifyMentions(sender.TenantId, &msg)
	cs.pushNewMessage(sender.TenantId, &msg)

	return &msg, nil
}

// fanOutUnreadCounts recomputes and pushes the per-room unread map to every
// other live session in the tenant. One user's failure is logged and the
// loop moves on.
func (cs *ChatServer) fanOutUnreadCounts(repo database.TenantRepository, tenantId, senderId string) {
	for _, c := range cs.TenantSessions(tenantId) {
		if c.identity.UserId == senderId {
			continue
		}

		counts, err := repo.UnreadCounts(c.identity.UserId)
		if err != nil {
			cs.log.Printf("unread recompute for user %q: %v", c.identity.UserId, err)
			continue
		}

		if !c.queueEvent(NewEvent(EvUnreadCountsUpdated, UnreadCountsEvent{Counts: counts})) {
			cs.stats.Incr(stats.BroadcastsDropped)
		}
	}
}

// notifyMentions delivers a targeted mention event to every live tenant
// session whose display name or username matches a mention,
// case-insensitively.
func (cs *ChatServer) notifyMentions(tenantId string, msg *types.Message) {
	if len(msg.Mentions) == 0 {
		return
	}

	preview := contentPreview(msg.Content)
	seen := make(map[string]struct{})
	var mentioned []string

	for _, mention := range msg.Mentions {
		name := mention.Username
		if name == "" {
			name = mention.Name
		}
		if name == "" {
			continue
		}

		target, ok := cs.findByName(tenantId, name)
		if !ok {
			continue
		}
		if target.identity.UserId == msg.Sender.Id {
			continue
		}
		if _, dup := seen[target.identity.UserId]; dup {
			continue
		}
		seen[target.identity.UserId] = struct{}{}
		mentioned = append(mentioned, target.identity.UserId)

		target.queueEvent(NewEvent(EvUserMentioned, MentionEvent{
			RoomId:    msg.RoomId,
			MessageId: msg.Id,
			Sender:    msg.Sender,
			Preview:   preview,
		}))
	}

	if len(mentioned) > 0 {
		cs.notifier.NotifyMention(tenantId, msg.RoomId, msg.Sender, preview, mentioned)
	}
}

// pushNewMessage hands the message off to the push collaborator for every
// other tenant user with a live session. Fire and forget.
func (cs *ChatServer) pushNewMessage(tenantId string, msg *types.Message) {
	var recipients []string
	for _, c := range cs.TenantSessions(tenantId) {
		if c.identity.UserId == msg.Sender.Id {
			continue
		}
		recipients = append(recipients, c.identity.UserId)
	}

	if len(recipients) > 0 {
		cs.notifier.NotifyNewMessage(tenantId, msg.RoomId, msg.Sender, contentPreview(msg.Content), recipients)
	}
}

// Typing rebroadcasts a typing indicator to the room; nothing is persisted.
func (cs *ChatServer) Typing(c *Client, roomId string, start bool) {
	if roomId == "" {
		return
	}

	name := EvUserStoppedTyping
	if start {
		name = EvUserTyping
	}

	ev := NewEvent(name, TypingEvent{
		RoomId: roomId,
		UserId: c.identity.UserId,
		Name:   c.identity.DisplayName,
	})
	ev.SkipClient = c

	cs.broadcastToRoom(c.identity.TenantId, roomId, ev)
}

func contentPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= mentionPreviewLen {
		return content
	}

	return string(runes[:mentionPreviewLen])
}
