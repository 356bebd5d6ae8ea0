package server

import (
	"encoding/json"
	"time"

	"github.com/edulink/classchat/internal/types"
)

// Inbound event names, as dispatched by connected clients.
const (
	EvJoinRoom              = "join-room"
	EvSendMessage           = "send-message"
	EvDeleteMessage         = "delete-message"
	EvEditMessage           = "edit-message"
	EvToggleReaction        = "toggle-reaction"
	EvPinMessage            = "pin-message"
	EvUnpinMessage          = "unpin-message"
	EvGetPinnedMessages     = "get-pinned-messages"
	EvLoadMoreMessages      = "load-more-messages"
	EvGetUnreadCounts       = "get-unread-counts"
	EvGetChatroomUnread     = "get-chatroom-unread-count"
	EvMarkMessagesRead      = "mark-messages-read"
	EvTypingStart           = "typing-start"
	EvTypingStop            = "typing-stop"
	EvSearchMessages        = "search-messages"
	EvGetOnlineUsers        = "get-online-users"
	EvDeleteFloatingMessage = "delete-floating-message"
	EvGetFloatingUnread     = "get-floating-unread-count"
)

// Outbound event names, broadcast or targeted.
const (
	EvAck                   = "ack"
	EvNewMessage            = "new-message"
	EvMessageDeleted        = "message-deleted"
	EvMessageEdited         = "message-edited"
	EvMessageReactionUpdate = "message-reaction-updated"
	EvPinnedMessagesUpdated = "pinned-messages-updated"
	EvUnreadCountsUpdated   = "unread-counts-updated"
	EvUserMentioned         = "user-mentioned"
	EvUserTyping            = "user-typing"
	EvUserStoppedTyping     = "user-stopped-typing"
	EvUserOnline            = "user-online"
	EvUserOffline           = "user-offline"
)

// ClientEvent is the inbound envelope. Id is a client-chosen correlation id
// echoed back on the ack.
type ClientEvent struct {
	Id    int             `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	client *Client
}

// ServerEvent is the outbound envelope. SkipClient suppresses delivery to
// one connection during a broadcast (typically the originator).
type ServerEvent struct {
	Id        int        `json:"id,omitempty"`
	Event     string     `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
	Success   *bool      `json:"success,omitempty"`
	Error     *ChatError `json:"error,omitempty"`
	Data      any        `json:"data,omitempty"`

	SkipClient *Client `json:"-"`
}

type JoinRoomPayload struct {
	RoomId string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomId     string            `json:"room_id"`
	Content    string            `json:"content"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
	ReplyTo    *types.ReplyRef   `json:"reply_to,omitempty"`
	Mentions   []types.Mention   `json:"mentions,omitempty"`
}

type MessagePayload struct {
	MessageId string `json:"message_id"`
}

type EditMessagePayload struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

type ToggleReactionPayload struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type RoomPayload struct {
	RoomId string `json:"room_id"`
}

type LoadMorePayload struct {
	RoomId string `json:"room_id"`
	// Before is a millisecond timestamp cursor; zero means newest page.
	Before int64 `json:"before,omitempty"`
	Limit  int   `json:"limit,omitempty"`
}

type SearchPayload struct {
	RoomId string `json:"room_id"`
	Query  string `json:"query"`
}

type MessageDeletedEvent struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type MessageEditedEvent struct {
	MessageId string    `json:"message_id"`
	RoomId    string    `json:"room_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

type ReactionUpdatedEvent struct {
	MessageId string                     `json:"message_id"`
	RoomId    string                     `json:"room_id"`
	Reactions map[string][]types.Reactor `json:"reactions"`
}

type PinnedMessagesEvent struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type UnreadCountsEvent struct {
	Counts map[string]int `json:"counts"`
}

type MentionEvent struct {
	RoomId    string       `json:"room_id"`
	MessageId string       `json:"message_id"`
	Sender    types.Sender `json:"sender"`
	Preview   string       `json:"preview"`
}

type TypingEvent struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
	Name   string `json:"name"`
}

type PresenceEvent struct {
	UserId      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func AckOK(id int, data any) *ServerEvent {
	ok := true
	return &ServerEvent{
		Id:        id,
		Event:     EvAck,
		Timestamp: Now(),
		Success:   &ok,
		Data:      data,
	}
}

func AckErr(id int, err error) *ServerEvent {
	ok := false
	return &ServerEvent{
		Id:        id,
		Event:     EvAck,
		Timestamp: Now(),
		Success:   &ok,
		Error:     asChatError(err),
	}
}

func NewEvent(name string, data any) *ServerEvent {
	return &ServerEvent{
		Event:     name,
		Timestamp: Now(),
		Data:      data,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
