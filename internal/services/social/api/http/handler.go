// Package http exposes the social service over REST.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/notices"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/rooms"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
)

// Handler routes REST requests onto the social service collaborators.
type Handler struct {
	users    storage.UserStore
	rooms    *rooms.Directory
	notices  *notices.Service
	resolver *domain.Resolver
}

// NewHandler constructs the REST handler.
func NewHandler(users storage.UserStore, directory *rooms.Directory, noticeService *notices.Service, resolver *domain.Resolver) *Handler {
	return &Handler{
		users:    users,
		rooms:    directory,
		notices:  noticeService,
		resolver: resolver,
	}
}

// Register attaches all REST routes to the router.
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/rooms/direct", h.createDirectRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/touch", h.touchRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/read", h.markRoomRead).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}", h.getRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms", h.listRecentRooms).Methods(http.MethodGet)

	api.HandleFunc("/relationship", h.resolveRelationship).Methods(http.MethodGet)

	api.HandleFunc("/notices/friend-request", h.sendFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/notices/announcement", h.sendAnnouncement).Methods(http.MethodPost)
	api.HandleFunc("/notices/{noticeID}/read", h.markNoticeRead).Methods(http.MethodPost)
	api.HandleFunc("/notices", h.listNotices).Methods(http.MethodGet)

	api.HandleFunc("/users/{userID}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}", h.putUser).Methods(http.MethodPut)

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
}

type userPayload struct {
	ID       string   `json:"id"`
	Handle   string   `json:"handle"`
	UserName string   `json:"userName"`
	Friends  []string `json:"friends"`
	Rooms    []string `json:"rooms"`
}

type roomPayload struct {
	ID          string            `json:"id"`
	Members     []string          `json:"members"`
	RoomName    string            `json:"roomname,omitempty"`
	RoomIcon    string            `json:"roomicon,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"`
	ReadState   map[string]string `json:"readState,omitempty"`
}

type noticePayload struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	NoticeType string    `json:"noticeType"`
	Message    string    `json:"message,omitempty"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

func (h *Handler) createDirectRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViewerID  string `json:"viewerId"`
		PartnerID string `json:"partnerId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	viewer, err := h.loadUser(r, req.ViewerID, domain.ErrUserNotFound)
	if err != nil {
		writeError(w, err)
		return
	}
	partner, err := h.loadUser(r, req.PartnerID, domain.ErrOtherUserNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	room, err := h.rooms.FetchOrCreateDirectRoom(r.Context(), viewer, partner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomToPayload(room))
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	room, err := h.rooms.FetchRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomToPayload(room))
}

func (h *Handler) listRecentRooms(w http.ResponseWriter, r *http.Request) {
	viewerID := strings.TrimSpace(r.URL.Query().Get("viewer"))
	if viewerID == "" {
		writeStatus(w, http.StatusBadRequest, "viewer is required")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeStatus(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	result, err := h.rooms.FetchRecentRooms(r.Context(), viewerID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]roomPayload, 0, len(result))
	for _, room := range result {
		payload = append(payload, roomToPayload(room))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) touchRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	if err := h.rooms.TouchLastUpdated(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (h *Handler) markRoomRead(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeStatus(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := h.rooms.MarkRoomRead(r.Context(), roomID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (h *Handler) resolveRelationship(w http.ResponseWriter, r *http.Request) {
	viewerID := strings.TrimSpace(r.URL.Query().Get("viewer"))
	subjectID := strings.TrimSpace(r.URL.Query().Get("subject"))
	if viewerID == "" || subjectID == "" {
		writeStatus(w, http.StatusBadRequest, "viewer and subject are required")
		return
	}

	subject, err := h.loadUser(r, subjectID, domain.ErrOtherUserNotFound)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.resolver.Resolve(r.Context(), viewerID, subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"viewerId":  viewerID,
		"subjectId": subjectID,
		"state":     string(state),
	})
}

func (h *Handler) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sender, err := h.loadUser(r, req.SenderID, domain.ErrUserNotFound)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.loadUser(r, req.ReceiverID, domain.ErrOtherUserNotFound); err != nil {
		writeError(w, err)
		return
	}

	notice, err := h.notices.SendFriendRequest(r.Context(), sender, req.ReceiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeToPayload(notice))
}

func (h *Handler) sendAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		Message    string `json:"message"`
		URL        string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sender, err := h.loadUser(r, req.SenderID, domain.ErrUserNotFound)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.loadUser(r, req.ReceiverID, domain.ErrOtherUserNotFound); err != nil {
		writeError(w, err)
		return
	}

	notice, err := h.notices.SendAnnouncement(r.Context(), sender, req.ReceiverID, req.Message, req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeToPayload(notice))
}

func (h *Handler) listNotices(w http.ResponseWriter, r *http.Request) {
	receiverID := strings.TrimSpace(r.URL.Query().Get("receiver"))
	if receiverID == "" {
		writeStatus(w, http.StatusBadRequest, "receiver is required")
		return
	}
	result, err := h.notices.ListByReceiver(r.Context(), receiverID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]noticePayload, 0, len(result))
	for _, notice := range result {
		payload = append(payload, noticeToPayload(notice))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) markNoticeRead(w http.ResponseWriter, r *http.Request) {
	noticeID := mux.Vars(r)["noticeID"]
	var req struct {
		ReceiverID string `json:"receiverId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		writeStatus(w, http.StatusBadRequest, "receiverId is required")
		return
	}

	notice, err := h.notices.MarkRead(r.Context(), req.ReceiverID, noticeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeToPayload(notice))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	record, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, domain.ErrUserNotFound)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userPayload{
		ID:       record.ID,
		Handle:   record.Handle,
		UserName: record.UserName,
		Friends:  record.Friends,
		Rooms:    record.Rooms,
	})
}

func (h *Handler) putUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	var req userPayload
	if !decodeBody(w, r, &req) {
		return
	}
	if userID == "" {
		writeStatus(w, http.StatusBadRequest, "user id is required")
		return
	}

	now := time.Now().UTC()
	record := storage.UserRecord{
		ID:        userID,
		Handle:    strings.TrimSpace(req.Handle),
		UserName:  strings.TrimSpace(req.UserName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.users.PutUser(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	for _, friendID := range req.Friends {
		if err := h.users.PutFriend(r.Context(), userID, friendID, now); err != nil {
			writeError(w, err)
			return
		}
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// loadUser resolves a user ID to its record, translating absence into the
// caller-selected domain error.
func (h *Handler) loadUser(r *http.Request, userID string, missing error) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, missing
	}
	record, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, missing
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

func roomToPayload(room domain.Room) roomPayload {
	payload := roomPayload{
		ID:          room.ID,
		Members:     room.Members,
		RoomName:    room.RoomName,
		RoomIcon:    room.RoomIcon,
		LastUpdated: room.LastUpdated,
	}
	if len(room.ReadState) > 0 {
		payload.ReadState = make(map[string]string, len(room.ReadState))
		for userID, at := range room.ReadState {
			payload.ReadState[userID] = at.UTC().Format(time.RFC3339)
		}
	}
	return payload
}

func noticeToPayload(notice domain.Notice) noticePayload {
	return noticePayload{
		ID:         notice.ID,
		SenderID:   notice.SenderID,
		ReceiverID: notice.ReceiverID,
		NoticeType: string(notice.Kind),
		Message:    notice.Message,
		URL:        notice.URL,
		Timestamp:  notice.Timestamp,
		IsRead:     notice.IsRead,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": message})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrOtherUserNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNoticeNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		// Duplicate appends are success-shaped: the entry is present.
		writeStatus(w, http.StatusOK, "ok")
	case errors.Is(err, domain.ErrUpdateFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, notices.ErrSenderRequired),
		errors.Is(err, notices.ErrReceiverRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("social api: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
