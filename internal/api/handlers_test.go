package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulink/classchat/internal/config"
	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/notify"
	"github.com/edulink/classchat/internal/server"
	"github.com/edulink/classchat/internal/stats"
	"github.com/edulink/classchat/internal/testutil"
	"github.com/edulink/classchat/internal/types"
)

// stubVerifier accepts exactly one token string.
type stubVerifier struct {
	token    string
	identity types.Identity
}

func (v *stubVerifier) Verify(token string) (types.Identity, error) {
	if token != v.token {
		return types.Identity{}, errors.New("bad token")
	}
	return v.identity, nil
}

func newTestApp(t *testing.T, repo database.TenantRepository, verifier TokenVerifier) (*ClassChatApp, *http.ServeMux) {
	t.Helper()

	logger := testutil.TestLogger(t)
	reg := database.NewRegistry(logger, map[string]string{"school-1": "postgres://school-1"},
		func(dsn string) (database.TenantRepository, error) { return repo, nil })

	cs, err := server.NewChatServer(logger, reg, server.NewRateLimiter(nil), notify.NopNotifier{}, &stats.MockStatsUpdater{})
	require.NoError(t, err)

	mux := http.NewServeMux()
	app := NewClassChatApp(mux, logger, cs, verifier, &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("unused"),
		Tenants:    map[string]string{"school-1": "postgres://school-1"},
	})

	return app, mux
}

func TestAuthMiddleware(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	verifier := &stubVerifier{
		token: "good-token",
		identity: types.Identity{
			UserId:   "a-1",
			TenantId: "school-1",
			Role:     types.RoleSchoolAdmin,
		},
	}
	_, mux := newTestApp(t, repo, verifier)

	t.Run("no credential", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected credential", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.Header.Set("Authorization", "Bearer forged")

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.Header.Set("Authorization", "Bearer good-token")

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("cookie fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "good-token"})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetRooms(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	_, err := repo.CreateRoom(database.CreateRoomParams{Id: "room-1", Name: "Math 7B", ClassCodes: "7B"})
	require.NoError(t, err)
	_, err = repo.CreateRoom(database.CreateRoomParams{Id: "room-2", Name: "Staff", Teachers: `["t-1"]`})
	require.NoError(t, err)

	verifier := &stubVerifier{
		token: "student-token",
		identity: types.Identity{
			UserId:    "s-1",
			TenantId:  "school-1",
			Role:      types.RoleStudent,
			ClassCode: "7B",
		},
	}
	_, mux := newTestApp(t, repo, verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer student-token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []types.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "room-1", rooms[0].Id)
	assert.Equal(t, []string{"7B"}, rooms[0].ClassCodes)
}

func TestGetMessages(t *testing.T) {
	repo := database.NewMemoryTenantRepository()
	require.NoError(t, repo.CreateMessage(types.Message{
		Id:        "m1",
		RoomId:    "room-1",
		Sender:    types.Sender{Id: "alice", Name: "alice"},
		Content:   "hello",
		CreatedAt: server.Now(),
	}))

	verifier := &stubVerifier{
		token: "student-token",
		identity: types.Identity{
			UserId:   "s-1",
			TenantId: "school-1",
			Role:     types.RoleStudent,
		},
	}
	_, mux := newTestApp(t, repo, verifier)

	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer student-token")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("serves a page of history", func(t *testing.T) {
		rec := get("/api/messages?room_id=room-1&limit=10")
		require.Equal(t, http.StatusOK, rec.Code)

		var page types.MessagePage
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
		require.Len(t, page.Messages, 1)
		assert.Equal(t, "m1", page.Messages[0].Id)
		assert.False(t, page.HasMore)
	})

	t.Run("missing room id", func(t *testing.T) {
		rec := get("/api/messages")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		rec := get("/api/messages?room_id=room-1&before=yesterday")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed limit", func(t *testing.T) {
		rec := get("/api/messages?room_id=room-1&limit=ten")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestChatErrToApiErr(t *testing.T) {
	app, _ := newTestApp(t, database.NewMemoryTenantRepository(), &stubVerifier{})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", server.NewValidationError("bad"), http.StatusBadRequest},
		{"not found", server.NewNotFoundError("missing"), http.StatusNotFound},
		{"unauthorized", server.NewUnauthorizedError("nope"), http.StatusUnauthorized},
		{"auth", server.NewAuthError("expired"), http.StatusUnauthorized},
		{"configuration", server.NewConfigurationError(errors.New("no dsn")), http.StatusBadGateway},
		{"connection", server.NewConnectionError(errors.New("refused")), http.StatusBadGateway},
		{"internal", server.NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{"non chat error", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, app.chatErrToApiErr(tc.err).StatusCode)
		})
	}
}
