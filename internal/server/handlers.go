package server

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/chat"
	"github.com/yusrasengun4/chat-app/internal/storage"
)

const (
	sessionName         = "chat-session"
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type parsers struct {
	registerPool    fastjson.ParserPool
	loginPool       fastjson.ParserPool
	createGroupPool fastjson.ParserPool
	groupInfoPool   fastjson.ParserPool
	membersPool     fastjson.ParserPool
	profilePool     fastjson.ParserPool
	searchPool      fastjson.ParserPool
	historyPool     fastjson.ParserPool
	markReadPool    fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    *storage.Store
	cookies  *sessions.CookieStore
	router   *chat.Router
	presence *chat.PresenceRegistry
	rooms    *chat.RoomRegistry
	offline  *chat.OfflineDeliveryAgent
	parsers  parsers
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) writeID(w http.ResponseWriter, id int64) {
	payload := []byte(`{"id":` + strconv.FormatInt(id, 10) + `}`)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// stringField extracts a required non-empty string field from a parsed body.
func stringField(v *fastjson.Value, name string) (string, string) {
	if !v.Exists(name) {
		return "", "Missing Field \"" + name + "\""
	}

	value := v.Get(name)
	if value.Type() != fastjson.TypeString {
		return "", "Field \"" + name + "\" must be a string"
	}

	s := strings.Trim(string(value.MarshalTo(nil)), `"`)
	if len(s) == 0 {
		return "", "Field \"" + name + "\" must have non-zero length"
	}

	return s, ""
}

// idField extracts a required positive 64-bit integer field.
func idField(v *fastjson.Value, name string) (int64, string) {
	if !v.Exists(name) {
		return 0, "Missing Field \"" + name + "\""
	}

	id, err := v.Get(name).Int64()
	if err != nil {
		return 0, "Field \"" + name + "\" must be a 64-bit integer value"
	}

	if id < 1 {
		return 0, "Field \"" + name + "\" must be a valid id grater than zero"
	}

	return id, ""
}

func limitField(v *fastjson.Value) int {
	if !v.Exists("limit") {
		return defaultHistoryLimit
	}

	limit, err := v.Get("limit").Int()
	if err != nil || limit < 1 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}

	return limit
}

// register handles HTTP requests on "/auth/register" endpoint
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.registerPool.Get()
	defer h.parsers.registerPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, msg := stringField(v, "username")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	password, msg := stringField(v, "password")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	email := fastjson.GetString(body, "email")

	id, err := h.store.CreateUser(r.Context(), username, password, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeID(w, id)
}

// login handles HTTP requests on "/auth/login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, msg := stringField(v, "username")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	password, msg := stringField(v, "password")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	user, err := h.store.VerifyCredentials(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, storage.ErrBadCredentials) {
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	session, _ := h.cookies.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	if err := session.Save(r, w); err != nil {
		h.logger.Errorf("saving session: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.store.SetUserOnline(r.Context(), user.ID, true); err != nil {
		h.logger.Errorf("marking user %d online: %v", user.ID, err)
	}

	h.writeJSON(w, http.StatusOK, user)
}

// logout handles HTTP requests on "/auth/logout" endpoint
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.store.SetUserOnline(r.Context(), id.userID, false); err != nil {
		h.logger.Errorf("marking user %d offline: %v", id.userID, err)
	}

	session, _ := h.cookies.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.logger.Errorf("clearing session: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionCheck handles HTTP requests on "/auth/session" endpoint
func (h *handler) sessionCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	user, err := h.store.UserByID(r.Context(), id.userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// usersAll handles HTTP requests on "/users/get" endpoint
func (h *handler) usersAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.AllUsers(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}

// usersOnline handles HTTP requests on "/users/online" endpoint
func (h *handler) usersOnline(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.OnlineUsers(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}

// userProfile handles HTTP requests on "/users/profile" endpoint
func (h *handler) userProfile(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.profilePool.Get()
	defer h.parsers.profilePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	userID, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	user, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// searchUsers handles HTTP requests on "/users/search" endpoint
func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.searchPool.Get()
	defer h.parsers.searchPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	query, msg := stringField(v, "query")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	users, err := h.store.SearchUsers(r.Context(), strings.TrimSpace(query))
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}

// createGroup handles HTTP requests on "/groups/add" endpoint
func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.createGroupPool.Get()
	defer h.parsers.createGroupPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	name, msg := stringField(v, "group_name")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	description := fastjson.GetString(body, "description")

	var memberIDs []int64
	if v.Exists("members") {
		memberValues, err := v.Get("members").Array()
		if err != nil {
			http.Error(w, "Field \"members\" must be an array", http.StatusBadRequest)
			return
		}

		memberIDs = make([]int64, 0, len(memberValues))
		for _, mv := range memberValues {
			memberID, err := mv.Int64()
			if err != nil || memberID < 1 {
				http.Error(w, "Each item in \"members\" array field must be a valid user id", http.StatusBadRequest)
				return
			}
			memberIDs = append(memberIDs, memberID)
		}
	}

	groupID, err := h.store.CreateGroup(r.Context(), name, description, id.userID, memberIDs)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrGroupExists):
			http.Error(w, "Group already exists", http.StatusBadRequest)
		case errors.Is(err, storage.ErrGroupBadMembers):
			http.Error(w, "Bad members list", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeID(w, groupID)
}

// allGroups handles HTTP requests on "/groups/all" endpoint
func (h *handler) allGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.AllGroups(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, groups)
}

// myGroups handles HTTP requests on "/groups/get" endpoint
func (h *handler) myGroups(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)

	groups, err := h.store.GroupsByUserID(r.Context(), id.userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, groups)
}

// groupInfo handles HTTP requests on "/groups/info" endpoint
func (h *handler) groupInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.groupInfoPool.Get()
	defer h.parsers.groupInfoPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	groupID, msg := idField(v, "group")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	member, err := h.store.IsMember(r.Context(), id.userID, groupID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	group, err := h.store.GroupByID(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotExist) {
			http.Error(w, "Group does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, group)
}

// groupMembers handles HTTP requests on "/groups/members/get" endpoint
func (h *handler) groupMembers(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.membersPool.Get()
	defer h.parsers.membersPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	groupID, msg := idField(v, "group")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	member, err := h.store.IsMember(r.Context(), id.userID, groupID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	members, err := h.store.GroupMembers(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotExist) {
			http.Error(w, "Group does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, members)
}

// addMember handles HTTP requests on "/groups/members/add" endpoint
func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.membersPool.Get()
	defer h.parsers.membersPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	groupID, msg := idField(v, "group")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	userID, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	member, err := h.store.IsMember(r.Context(), id.userID, groupID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	err = h.store.AddGroupMember(r.Context(), groupID, userID, storage.RoleMember)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyMember):
			http.Error(w, "User is already a group member", http.StatusBadRequest)
		case errors.Is(err, storage.ErrGroupNotExist):
			http.Error(w, "Group does not exist", http.StatusBadRequest)
		case errors.Is(err, storage.ErrUserNotExist):
			http.Error(w, "User does not exist", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeMember handles HTTP requests on "/groups/members/remove" endpoint
func (h *handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.membersPool.Get()
	defer h.parsers.membersPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	groupID, msg := idField(v, "group")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	userID, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	member, err := h.store.IsMember(r.Context(), id.userID, groupID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	if err := h.store.RemoveGroupMember(r.Context(), groupID, userID); err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// broadcastHistory handles HTTP requests on "/messages/broadcast/get" endpoint
func (h *handler) broadcastHistory(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.historyPool.Get()
	defer h.parsers.historyPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	messages, err := h.store.BroadcastMessages(r.Context(), limitField(v))
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// groupHistory handles HTTP requests on "/messages/group/get" endpoint
func (h *handler) groupHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.historyPool.Get()
	defer h.parsers.historyPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	groupID, msg := idField(v, "group")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	member, err := h.store.IsMember(r.Context(), id.userID, groupID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "You are not a member of this group", http.StatusForbidden)
		return
	}

	messages, err := h.store.GroupMessages(r.Context(), groupID, limitField(v))
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// privateHistory handles HTTP requests on "/messages/private/get" endpoint
func (h *handler) privateHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r)
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.historyPool.Get()
	defer h.parsers.historyPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	peerID, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	messages, err := h.store.PrivateMessages(r.Context(), id.userID, peerID, limitField(v))
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// markRead handles HTTP requests on "/messages/read" endpoint
func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.markReadPool.Get()
	defer h.parsers.markReadPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	messageID, msg := idField(v, "message")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.router.MarkRead(r.Context(), messageID); err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
