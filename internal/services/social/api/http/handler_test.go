package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/notices"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/rooms"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage/sqlite"
)

type testEnv struct {
	server *httptest.Server
	store  *sqlite.Store
}

type storeUserLoader struct {
	store *sqlite.Store
}

func (l storeUserLoader) GetUser(ctx context.Context, userID string) (domain.User, error) {
	record, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return domain.User{
		ID:       record.ID,
		Handle:   record.Handle,
		UserName: record.UserName,
		Friends:  record.Friends,
		Rooms:    record.Rooms,
	}, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "social.db")
	store, err := sqlite.Open(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})

	noticeService := notices.NewService(store, nil, nil, nil)
	directory := rooms.NewDirectory(store, store, nil)
	resolver := domain.NewResolver(storeUserLoader{store: store}, noticeService)

	router := mux.NewRouter()
	NewHandler(store, directory, noticeService, resolver).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store}
}

func (e *testEnv) putUser(t *testing.T, id, userName string) {
	t.Helper()
	if err := e.store.PutUser(context.Background(), storage.UserRecord{
		ID:        id,
		Handle:    "handle-" + id,
		UserName:  userName,
		CreatedAt: time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("put user %s: %v", id, err)
	}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var value T
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

func TestCreateDirectRoom_RoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "u1", "Alice")
	env.putUser(t, "u2", "Bob")

	resp := env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
		"viewerId":  "u2",
		"partnerId": "u1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create direct room status = %d", resp.StatusCode)
	}
	room := decodeJSON[roomPayload](t, resp)
	if room.ID != "u1_u2" {
		t.Fatalf("room id = %s, want u1_u2", room.ID)
	}

	// Creating again returns the same room.
	again := env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
		"viewerId":  "u1",
		"partnerId": "u2",
	})
	if again.StatusCode != http.StatusOK {
		t.Fatalf("repeat create status = %d", again.StatusCode)
	}
	sameRoom := decodeJSON[roomPayload](t, again)
	if sameRoom.ID != room.ID {
		t.Fatalf("expected same room, got %s and %s", room.ID, sameRoom.ID)
	}

	fetched := env.get(t, "/api/v1/rooms/u1_u2")
	if fetched.StatusCode != http.StatusOK {
		t.Fatalf("get room status = %d", fetched.StatusCode)
	}
	got := decodeJSON[roomPayload](t, fetched)
	if len(got.Members) != 2 {
		t.Fatalf("expected two members, got %v", got.Members)
	}
}

func TestCreateDirectRoom_MissingUsers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "u1", "Alice")

	resp := env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
		"viewerId":  "ghost",
		"partnerId": "u1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing viewer status = %d, want 404", resp.StatusCode)
	}

	resp = env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
		"viewerId":  "u1",
		"partnerId": "ghost",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing partner status = %d, want 404", resp.StatusCode)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.get(t, "/api/v1/rooms/missing")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListRecentRooms_OrdersAndValidates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "u1", "Alice")
	env.putUser(t, "u2", "Bob")
	env.putUser(t, "u3", "Carol")

	for _, partner := range []string{"u2", "u3"} {
		resp := env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
			"viewerId":  "u1",
			"partnerId": partner,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("create room with %s status = %d", partner, resp.StatusCode)
		}
	}

	touch := env.postJSON(t, "/api/v1/rooms/u1_u2/touch", map[string]string{})
	touch.Body.Close()
	if touch.StatusCode != http.StatusOK {
		t.Fatalf("touch status = %d", touch.StatusCode)
	}

	resp := env.get(t, "/api/v1/rooms?viewer=u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	listed := decodeJSON[[]roomPayload](t, resp)
	if len(listed) != 2 {
		t.Fatalf("expected two rooms, got %d", len(listed))
	}
	if listed[0].ID != "u1_u2" {
		t.Fatalf("expected touched room first, got %s", listed[0].ID)
	}

	bad := env.get(t, "/api/v1/rooms")
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing viewer status = %d, want 400", bad.StatusCode)
	}
}

func TestMarkRoomRead_RecordsReadState(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "u1", "Alice")
	env.putUser(t, "u2", "Bob")

	created := env.postJSON(t, "/api/v1/rooms/direct", map[string]string{
		"viewerId":  "u1",
		"partnerId": "u2",
	})
	created.Body.Close()

	resp := env.postJSON(t, "/api/v1/rooms/u1_u2/read", map[string]string{"userId": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read status = %d", resp.StatusCode)
	}

	fetched := env.get(t, "/api/v1/rooms/u1_u2")
	room := decodeJSON[roomPayload](t, fetched)
	if _, ok := room.ReadState["u1"]; !ok {
		t.Fatalf("expected read state for u1, got %v", room.ReadState)
	}
}

func TestFriendRequestAndRelationshipFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "u1", "Alice")
	env.putUser(t, "u2", "Bob")

	state := func(viewer, subject string) string {
		t.Helper()
		resp := env.get(t, fmt.Sprintf("/api/v1/relationship?viewer=%s&subject=%s", viewer, subject))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("relationship status = %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]string](t, resp)
		return body["state"]
	}

	if got := state("u1", "u2"); got != string(domain.StateStranger) {
		t.Fatalf("initial state = %s, want stranger", got)
	}
	if got := state("u1", "u1"); got != string(domain.StateSelfProfile) {
		t.Fatalf("self state = %s, want selfProfile", got)
	}

	sent := env.postJSON(t, "/api/v1/notices/friend-request", map[string]string{
		"senderId":   "u1",
		"receiverId": "u2",
	})
	if sent.StatusCode != http.StatusOK {
		t.Fatalf("friend request status = %d", sent.StatusCode)
	}
	notice := decodeJSON[noticePayload](t, sent)
	if notice.NoticeType != string(domain.KindFriendRequest) {
		t.Fatalf("notice type = %s, want friendRequest", notice.NoticeType)
	}

	if got := state("u1", "u2"); got != string(domain.StatePendingRequestSent) {
		t.Fatalf("sender state = %s, want pendingRequestSent", got)
	}
	if got := state("u2", "u1"); got != string(domain.StatePendingRequestReceived) {
		t.Fatalf("receiver state = %s, want pendingRequestReceived", got)
	}

	// Re-sending converges on the stored notice.
	resent := env.postJSON(t, "/api/v1/notices/friend-request", map[string]string{
		"senderId":   "u1",
		"receiverId": "u2",
	})
	if resent.StatusCode != http.StatusOK {
		t.Fatalf("repeat friend request status = %d", resent.StatusCode)
	}
	same := decodeJSON[noticePayload](t, resent)
	if same.ID != notice.ID {
		t.Fatalf("expected stored notice %s, got %s", notice.ID, same.ID)
	}

	// Acceptance mirrors both friend caches; the stale notice stays but
	// friendship wins.
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	if err := env.store.PutFriend(context.Background(), "u1", "u2", now); err != nil {
		t.Fatalf("put friend: %v", err)
	}
	if err := env.store.PutFriend(context.Background(), "u2", "u1", now); err != nil {
		t.Fatalf("put friend: %v", err)
	}
	if got := state("u1", "u2"); got != string(domain.StateFriend) {
		t.Fatalf("post-acceptance state = %s, want friend", got)
	}
}

func TestNoticeListingAndRead(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.putUser(t, "admin", "Admin")
	env.putUser(t, "u1", "Alice")

	sent := env.postJSON(t, "/api/v1/notices/announcement", map[string]string{
		"senderId":   "admin",
		"receiverId": "u1",
		"message":    "Maintenance tonight",
		"url":        "https://example.com/maintenance",
	})
	if sent.StatusCode != http.StatusOK {
		t.Fatalf("announcement status = %d", sent.StatusCode)
	}
	created := decodeJSON[noticePayload](t, sent)
	if created.Message != "Maintenance tonight" {
		t.Fatalf("message = %q", created.Message)
	}

	listResp := env.get(t, "/api/v1/notices?receiver=u1")
	listed := decodeJSON[[]noticePayload](t, listResp)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("expected single notice %s, got %+v", created.ID, listed)
	}
	if listed[0].IsRead {
		t.Fatal("expected unread notice")
	}

	readResp := env.postJSON(t, "/api/v1/notices/"+created.ID+"/read", map[string]string{
		"receiverId": "u1",
	})
	if readResp.StatusCode != http.StatusOK {
		t.Fatalf("mark read status = %d", readResp.StatusCode)
	}
	marked := decodeJSON[noticePayload](t, readResp)
	if !marked.IsRead {
		t.Fatal("expected read notice")
	}

	missing := env.postJSON(t, "/api/v1/notices/missing/read", map[string]string{
		"receiverId": "u1",
	})
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing notice status = %d, want 404", missing.StatusCode)
	}
}

func TestUserEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	put := func(body userPayload) *http.Response {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal user: %v", err)
		}
		req, err := http.NewRequest(http.MethodPut, env.server.URL+"/api/v1/users/u1", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT user: %v", err)
		}
		return resp
	}

	resp := put(userPayload{Handle: "alice", UserName: "Alice", Friends: []string{"u2"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put user status = %d", resp.StatusCode)
	}

	got := env.get(t, "/api/v1/users/u1")
	if got.StatusCode != http.StatusOK {
		t.Fatalf("get user status = %d", got.StatusCode)
	}
	user := decodeJSON[userPayload](t, got)
	if user.UserName != "Alice" || len(user.Friends) != 1 || user.Friends[0] != "u2" {
		t.Fatalf("unexpected user payload %+v", user)
	}

	missing := env.get(t, "/api/v1/users/ghost")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing user status = %d, want 404", missing.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.get(t, "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}
