package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/edulink/classchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one live session: an authenticated websocket connection plus
// its current room membership. Events from a single connection are handled
// sequentially off the read pump, which preserves a sender's own ordering
// end to end.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	identity   types.Identity
	sessionId  string
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once

	roomMu      sync.RWMutex
	currentRoom string
}

func NewClient(identity types.Identity, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		identity:   identity,
		sessionId:  uuid.NewString(),
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Identity() types.Identity {
	return c.identity
}

// CurrentRoom returns the persistent room this session has joined, or ""
// if none. The floating room is not tracked here; membership in it is
// implicit.
func (c *Client) CurrentRoom() string {
	c.roomMu.RLock()
	defer c.roomMu.RUnlock()
	return c.currentRoom
}

// setCurrentRoom replaces the previous persistent-room membership; the
// transport model is single-room-at-a-time per session.
func (c *Client) setCurrentRoom(roomId string) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.currentRoom = roomId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(AckErr(0, NewValidationError("invalid event format")))
			continue
		}

		ev.client = c
		c.dispatch(&ev)
	}
}

func (c *Client) dispatch(ev *ClientEvent) {
	switch ev.Event {
	case EvJoinRoom:
		c.handleJoinRoom(ev)
	case EvSendMessage:
		c.handleSendMessage(ev)
	case EvDeleteMessage, EvDeleteFloatingMessage:
		c.handleDeleteMessage(ev)
	case EvEditMessage:
		c.handleEditMessage(ev)
	case EvToggleReaction:
		c.handleToggleReaction(ev)
	case EvPinMessage:
		c.handlePinMessage(ev)
	case EvUnpinMessage:
		c.handleUnpinMessage(ev)
	case EvGetPinnedMessages:
		c.handleGetPinnedMessages(ev)
	case EvLoadMoreMessages:
		c.handleLoadMoreMessages(ev)
	case EvGetUnreadCounts:
		c.handleGetUnreadCounts(ev)
	case EvGetChatroomUnread:
		c.handleGetRoomUnread(ev)
	case EvGetFloatingUnread:
		c.handleGetFloatingUnread(ev)
	case EvMarkMessagesRead:
		c.handleMarkMessagesRead(ev)
	case EvTypingStart:
		c.handleTyping(ev, true)
	case EvTypingStop:
		c.handleTyping(ev, false)
	case EvSearchMessages:
		c.handleSearchMessages(ev)
	case EvGetOnlineUsers:
		c.handleGetOnlineUsers(ev)
	default:
		c.queueEvent(AckErr(ev.Id, NewValidationError("unknown event: "+ev.Event)))
	}
}

func (c *Client) handleJoinRoom(ev *ClientEvent) {
	var payload JoinRoomPayload
	if !c.decode(ev, &payload) {
		return
	}

	if err := c.chatServer.JoinRoom(c, payload.RoomId); err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, RoomPayload{RoomId: payload.RoomId}))
}

func (c *Client) handleSendMessage(ev *ClientEvent) {
	var payload SendMessagePayload
	if !c.decode(ev, &payload) {
		return
	}

	msg, err := c.chatServer.SendMessage(c.identity, payload)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, msg))
}

func (c *Client) handleDeleteMessage(ev *ClientEvent) {
	var payload MessagePayload
	if !c.decode(ev, &payload) {
		return
	}

	if err := c.chatServer.DeleteMessage(c.identity, payload.MessageId); err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, nil))
}

func (c *Client) handleEditMessage(ev *ClientEvent) {
	var payload EditMessagePayload
	if !c.decode(ev, &payload) {
		return
	}

	edited, err := c.chatServer.EditMessage(c.identity, payload.MessageId, payload.Content)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, edited))
}

func (c *Client) handleToggleReaction(ev *ClientEvent) {
	var payload ToggleReactionPayload
	if !c.decode(ev, &payload) {
		return
	}

	reactions, err := c.chatServer.ToggleReaction(c.identity, payload.MessageId, payload.Emoji)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, reactions))
}

func (c *Client) handlePinMessage(ev *ClientEvent) {
	var payload MessagePayload
	if !c.decode(ev, &payload) {
		return
	}

	pinned, err := c.chatServer.PinMessage(c.identity, payload.MessageId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, pinned))
}

func (c *Client) handleUnpinMessage(ev *ClientEvent) {
	var payload MessagePayload
	if !c.decode(ev, &payload) {
		return
	}

	pinned, err := c.chatServer.UnpinMessage(c.identity, payload.MessageId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, pinned))
}

func (c *Client) handleGetPinnedMessages(ev *ClientEvent) {
	var payload RoomPayload
	if !c.decode(ev, &payload) {
		return
	}

	pinned, err := c.chatServer.PinnedMessages(c.identity, payload.RoomId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, pinned))
}

func (c *Client) handleLoadMoreMessages(ev *ClientEvent) {
	var payload LoadMorePayload
	if !c.decode(ev, &payload) {
		return
	}

	page, err := c.chatServer.LoadMessages(c.identity, payload)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, page))
}

func (c *Client) handleGetUnreadCounts(ev *ClientEvent) {
	counts, err := c.chatServer.UnreadCounts(c.identity)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, UnreadCountsEvent{Counts: counts}))
}

func (c *Client) handleGetRoomUnread(ev *ClientEvent) {
	var payload RoomPayload
	if !c.decode(ev, &payload) {
		return
	}

	count, err := c.chatServer.UnreadCount(c.identity, payload.RoomId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, map[string]int{payload.RoomId: count}))
}

func (c *Client) handleGetFloatingUnread(ev *ClientEvent) {
	count, err := c.chatServer.UnreadCount(c.identity, FloatingRoomId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, map[string]int{FloatingRoomId: count}))
}

func (c *Client) handleMarkMessagesRead(ev *ClientEvent) {
	var payload RoomPayload
	if !c.decode(ev, &payload) {
		return
	}

	counts, err := c.chatServer.MarkRead(c.identity, payload.RoomId)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, nil))
	c.queueEvent(NewEvent(EvUnreadCountsUpdated, UnreadCountsEvent{Counts: counts}))
}

func (c *Client) handleTyping(ev *ClientEvent, start bool) {
	var payload RoomPayload
	if !c.decode(ev, &payload) {
		return
	}

	c.chatServer.Typing(c, payload.RoomId, start)
}

func (c *Client) handleSearchMessages(ev *ClientEvent) {
	var payload SearchPayload
	if !c.decode(ev, &payload) {
		return
	}

	msgs, err := c.chatServer.SearchMessages(c.identity, payload.RoomId, payload.Query)
	if err != nil {
		c.queueEvent(AckErr(ev.Id, err))
		return
	}

	c.queueEvent(AckOK(ev.Id, msgs))
}

func (c *Client) handleGetOnlineUsers(ev *ClientEvent) {
	users := c.chatServer.OnlineUsers(c.identity.TenantId)

	online := make([]PresenceEvent, 0, len(users))
	for _, u := range users {
		online = append(online, PresenceEvent{
			UserId:      u.UserId,
			Username:    u.Username,
			DisplayName: u.DisplayName,
		})
	}

	c.queueEvent(AckOK(ev.Id, online))
}

func (c *Client) decode(ev *ClientEvent, v any) bool {
	if len(ev.Data) == 0 {
		c.queueEvent(AckErr(ev.Id, NewValidationError("missing event payload")))
		return false
	}

	if err := json.Unmarshal(ev.Data, v); err != nil {
		c.queueEvent(AckErr(ev.Id, NewValidationError("invalid event payload")))
		return false
	}

	return true
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send buffer full for user %q, dropping event %q", c.identity.UserId, ev.Event)
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.Unregister(c)
	c.stopClient()
}
