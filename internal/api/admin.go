package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"relay/internal/content"
	"relay/internal/models"

	"github.com/google/uuid"
)

// Store is the identity store and group directory the admin surface edits.
type Store interface {
	UpsertUser(user models.User) error
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	UpsertGroup(group models.Group) error
	ListGroups() ([]models.Group, error)
	AddGroupMember(groupID, userID string, joinedAt int64) (models.Group, error)
	AddGroupAdmin(groupID, userID string) (models.Group, error)
	ListFriends(ownerID string) ([]models.FriendEdge, error)
}

type OnlineSource interface {
	Snapshot() (models.OnlineUsers, models.OnlineGroups)
}

type NameCache interface {
	Invalidate(id string)
}

type AdminHandler struct {
	store  Store
	online OnlineSource
	names  NameCache
	now    func() time.Time
}

func NewAdminHandler(store Store, online OnlineSource, names NameCache) *AdminHandler {
	return &AdminHandler{store: store, online: online, names: names, now: time.Now}
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type AddUserRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type UserResponse struct {
	APIResponse
	User models.User `json:"user"`
}

type AddGroupRequest struct {
	Name      string   `json:"name"`
	AdminID   string   `json:"adminId"`
	MemberIDs []string `json:"memberIds"`
}

type GroupMemberRequest struct {
	UserID string `json:"userId"`
}

type GroupResponse struct {
	APIResponse
	Group models.Group `json:"group"`
}

type UsersResponse struct {
	APIResponse
	Users []models.User `json:"users"`
}

type GroupsResponse struct {
	APIResponse
	Groups []models.Group `json:"groups"`
}

type FriendsResponse struct {
	APIResponse
	Friends []models.FriendEdge `json:"friends"`
}

type OnlineResponse struct {
	Users  []string `json:"users"`
	Groups []string `json:"groups"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Name); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: err.Error()})
		return
	}

	user := models.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		AvatarURL: content.Sanitize(req.AvatarURL),
		CreatedAt: h.now().Unix(),
	}
	if err := h.store.UpsertUser(user); err != nil {
		writeJSON(w, http.StatusInternalServerError, APIResponse{Message: fmt.Sprintf("Failed to create user: %v", err)})
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{APIResponse: APIResponse{Success: true}, User: user})
}

// RenameUserHandler changes a display name; cached names are dropped so the
// next message carries the new one.
func (h *AdminHandler) RenameUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := content.ValidateUsername(req.Name); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: err.Error()})
		return
	}

	user, err := h.store.GetUser(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	user.Name = req.Name
	if err := h.store.UpsertUser(user); err != nil {
		writeStoreError(w, err)
		return
	}
	h.names.Invalidate(user.ID)

	writeJSON(w, http.StatusOK, UserResponse{APIResponse: APIResponse{Success: true}, User: user})
}

func (h *AdminHandler) AddGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req AddGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := content.Sanitize(req.Name)
	if name == "" || req.AdminID == "" {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "name and adminId are required"})
		return
	}

	now := h.now().Unix()
	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Admins:    []string{req.AdminID},
		CreatedAt: now,
	}

	// The admin is always a member.
	seen := make(map[string]bool)
	for _, id := range append([]string{req.AdminID}, req.MemberIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := h.store.GetUser(id); err != nil {
			writeStoreError(w, err)
			return
		}
		group.Members = append(group.Members, models.GroupMember{UserID: id, JoinedAt: now})
	}

	if err := h.store.UpsertGroup(group); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GroupResponse{APIResponse: APIResponse{Success: true}, Group: group})
}

func (h *AdminHandler) AddGroupMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req GroupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUser(req.UserID); err != nil {
		writeStoreError(w, err)
		return
	}

	group, err := h.store.AddGroupMember(r.PathValue("id"), req.UserID, h.now().Unix())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GroupResponse{APIResponse: APIResponse{Success: true}, Group: group})
}

func (h *AdminHandler) AddGroupAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req GroupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetUser(req.UserID); err != nil {
		writeStoreError(w, err)
		return
	}

	// Admins are members too.
	group, err := h.store.AddGroupMember(r.PathValue("id"), req.UserID, h.now().Unix())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	group, err = h.store.AddGroupAdmin(group.ID, req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GroupResponse{APIResponse: APIResponse{Success: true}, Group: group})
}

func (h *AdminHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, UsersResponse{APIResponse: APIResponse{Success: true}, Users: users})
}

func (h *AdminHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, GroupsResponse{APIResponse: APIResponse{Success: true}, Groups: groups})
}

// FriendsHandler lists the half-edges owned by a user, in any status.
func (h *AdminHandler) FriendsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	friends, err := h.store.ListFriends(user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if friends == nil {
		friends = []models.FriendEdge{}
	}
	writeJSON(w, http.StatusOK, FriendsResponse{APIResponse: APIResponse{Success: true}, Friends: friends})
}

func (h *AdminHandler) OnlineHandler(w http.ResponseWriter, r *http.Request) {
	users, groups := h.online.Snapshot()
	writeJSON(w, http.StatusOK, OnlineResponse{Users: users.Users, Groups: groups.Groups})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, APIResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIResponse{Message: fmt.Sprintf("Storage error: %v", err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
