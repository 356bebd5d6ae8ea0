package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/edulink/classchat/internal/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *ClassChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// getRooms lists the rooms visible to the caller under the tenant's
// membership policies. No access to a room omits it; it is never an error.
func (s *ClassChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.cs.RoomsVisibleTo(identity)
	if err != nil {
		errResp := s.chatErrToApiErr(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

// getMessages serves one descending page of room history. Query params:
// room_id, before (millisecond cursor), limit.
func (s *ClassChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	payload := server.LoadMorePayload{
		RoomId: r.URL.Query().Get("room_id"),
	}
	if before := r.URL.Query().Get("before"); before != "" {
		ms, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		payload.Before = ms
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		payload.Limit = n
	}

	page, err := s.cs.LoadMessages(identity, payload)
	if err != nil {
		errResp := s.chatErrToApiErr(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, page)
}

// serveWs upgrades the connection and attaches a live session to the chat
// engine.
func (s *ClassChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("ws upgrade: %v", err)
		return
	}

	client := server.NewClient(identity, conn, s.cs, s.log)
	s.cs.Register(client)

	go client.Write()
	go client.Read()
}

func (s *ClassChatApp) chatErrToApiErr(err error) *ApiError {
	var chatErr *server.ChatError
	if !errors.As(err, &chatErr) {
		return NewInternalServerError(err)
	}

	switch chatErr.Code {
	case server.CodeValidation:
		return NewBadRequestError()
	case server.CodeNotFound:
		return NewNotFoundError()
	case server.CodeUnauthorized, server.CodeAuth:
		return NewUnauthorizedError()
	case server.CodeConfiguration, server.CodeConnection:
		return NewBadGatewayError(chatErr)
	default:
		return NewInternalServerError(chatErr)
	}
}
