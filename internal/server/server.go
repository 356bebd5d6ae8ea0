package server

import (
	"log"
	"strings"
	"sync"

	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/notify"
	"github.com/edulink/classchat/internal/stats"
	"github.com/edulink/classchat/internal/types"
)

// FloatingRoomId is the tenant-wide ambient room. Every live session is a
// member for its whole life; it has no stored membership policy.
const FloatingRoomId = "floating"

// ChatServer owns the process-wide session registry and the message
// distribution engine. All shared state is reached through it; there are no
// package-level registries.
type ChatServer struct {
	log      *log.Logger
	tenants  *database.Registry
	limiter  *RateLimiter
	notifier notify.Notifier
	stats    stats.StatsProvider

	mu       sync.RWMutex
	sessions map[string]*Client            // sessionKey(tenant, user) -> live session
	byTenant map[string]map[string]*Client // tenantId -> userId -> live session
}

func NewChatServer(logger *log.Logger, tenants *database.Registry, limiter *RateLimiter,
	notifier notify.Notifier, statsProvider stats.StatsProvider) (*ChatServer, error) {
	return &ChatServer{
		log:      logger,
		tenants:  tenants,
		limiter:  limiter,
		notifier: notifier,
		stats:    statsProvider,
		sessions: make(map[string]*Client),
		byTenant: make(map[string]map[string]*Client),
	}, nil
}

func sessionKey(tenantId, userId string) string {
	return tenantId + "/" + userId
}

// Register adds a live session. A user id already registered for the tenant
// is replaced: the previous device's socket is closed and its registration
// dropped. Joining the ambient room triggers an online presence broadcast
// to the rest of the tenant.
func (cs *ChatServer) Register(c *Client) {
	key := sessionKey(c.identity.TenantId, c.identity.UserId)

	cs.mu.Lock()
	old := cs.sessions[key]
	cs.sessions[key] = c
	tenant, ok := cs.byTenant[c.identity.TenantId]
	if !ok {
		tenant = make(map[string]*Client)
		cs.byTenant[c.identity.TenantId] = tenant
	}
	tenant[c.identity.UserId] = c
	cs.mu.Unlock()

	cs.stats.Incr(stats.LiveSessions)

	if old != nil {
		cs.log.Printf("replacing session %s for user %q", old.sessionId, old.identity.UserId)
		old.stopClient()
		// the user never went offline, so no presence change
		return
	}

	cs.log.Printf("registered user %q (session %s)", c.identity.UserId, c.sessionId)
	cs.broadcastToTenant(c.identity.TenantId, &ServerEvent{
		Event:     EvUserOnline,
		Timestamp: Now(),
		Data: PresenceEvent{
			UserId:      c.identity.UserId,
			Username:    c.identity.Username,
			DisplayName: c.identity.DisplayName,
		},
		SkipClient: c,
	})
}

// Unregister removes a live session if it is still the current one for its
// user, and broadcasts offline presence to the tenant.
func (cs *ChatServer) Unregister(c *Client) {
	key := sessionKey(c.identity.TenantId, c.identity.UserId)

	cs.mu.Lock()
	cur, ok := cs.sessions[key]
	if !ok || cur != c {
		// already replaced by a newer session
		cs.mu.Unlock()
		cs.stats.Decr(stats.LiveSessions)
		return
	}
	delete(cs.sessions, key)
	if tenant, ok := cs.byTenant[c.identity.TenantId]; ok {
		delete(tenant, c.identity.UserId)
		if len(tenant) == 0 {
			delete(cs.byTenant, c.identity.TenantId)
		}
	}
	cs.mu.Unlock()

	cs.stats.Decr(stats.LiveSessions)
	cs.log.Printf("unregistered user %q (session %s)", c.identity.UserId, c.sessionId)

	cs.broadcastToTenant(c.identity.TenantId, &ServerEvent{
		Event:     EvUserOffline,
		Timestamp: Now(),
		Data: PresenceEvent{
			UserId:      c.identity.UserId,
			Username:    c.identity.Username,
			DisplayName: c.identity.DisplayName,
		},
	})
}

// Lookup returns the live session for a user, if any.
func (cs *ChatServer) Lookup(tenantId, userId string) (*Client, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	c, ok := cs.sessions[sessionKey(tenantId, userId)]
	return c, ok
}

// RoomMembers returns the sessions currently joined to a room. Membership
// here is live-session state, not the persisted membership policy: a user
// entitled to a room but not joined is absent. Every tenant session is a
// member of the floating room.
func (cs *ChatServer) RoomMembers(tenantId, roomId string) []*Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var members []*Client
	for _, c := range cs.byTenant[tenantId] {
		if roomId == FloatingRoomId || c.CurrentRoom() == roomId {
			members = append(members, c)
		}
	}

	return members
}

// TenantSessions returns every live session for a tenant.
func (cs *ChatServer) TenantSessions(tenantId string) []*Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	sessions := make([]*Client, 0, len(cs.byTenant[tenantId]))
	for _, c := range cs.byTenant[tenantId] {
		sessions = append(sessions, c)
	}

	return sessions
}

// OnlineUsers returns the identities of a tenant's live sessions.
func (cs *ChatServer) OnlineUsers(tenantId string) []types.Identity {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	users := make([]types.Identity, 0, len(cs.byTenant[tenantId]))
	for _, c := range cs.byTenant[tenantId] {
		users = append(users, c.identity)
	}

	return users
}

// findByName resolves a live tenant session by display name or username,
// case-insensitively. Used for mention delivery.
func (cs *ChatServer) findByName(tenantId, name string) (*Client, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	for _, c := range cs.byTenant[tenantId] {
		if strings.EqualFold(c.identity.DisplayName, name) || strings.EqualFold(c.identity.Username, name) {
			return c, true
		}
	}

	return nil, false
}

func (cs *ChatServer) broadcastToRoom(tenantId, roomId string, ev *ServerEvent) {
	for _, c := range cs.RoomMembers(tenantId, roomId) {
		if c == ev.SkipClient {
			continue
		}
		if !c.queueEvent(ev) {
			cs.stats.Incr(stats.BroadcastsDropped)
		}
	}
}

func (cs *ChatServer) broadcastToTenant(tenantId string, ev *ServerEvent) {
	for _, c := range cs.TenantSessions(tenantId) {
		if c == ev.SkipClient {
			continue
		}
		if !c.queueEvent(ev) {
			cs.stats.Incr(stats.BroadcastsDropped)
		}
	}
}

// Shutdown closes every live session and the tenant connection cache.
func (cs *ChatServer) Shutdown() {
	cs.log.Println("shutting down chat server")

	cs.mu.Lock()
	sessions := make([]*Client, 0, len(cs.sessions))
	for _, c := range cs.sessions {
		sessions = append(sessions, c)
	}
	cs.sessions = make(map[string]*Client)
	cs.byTenant = make(map[string]map[string]*Client)
	cs.mu.Unlock()

	for _, c := range sessions {
		c.stopClient()
	}

	cs.tenants.Close()
}
