package lobby

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// lobbyRequest 大厅 HTTP 接口的通用请求体
type lobbyRequest struct {
	Member     MemberID `json:"member"`
	Lobby      LobbyID  `json:"lobby,omitempty"`
	MaxMembers int      `json:"maxMembers,omitempty"`
	Key        string   `json:"key,omitempty"`
	Value      string   `json:"value,omitempty"`
	To         MemberID `json:"to,omitempty"`
}

type profileRequest struct {
	Member MemberID `json:"member"`
	Profile
}

type personaResponse struct {
	Member MemberID `json:"member"`
	Name   string   `json:"name"`
	Status Status   `json:"status"`
}

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

// Register 将大厅接口挂到 mux 上（/lobby/...）
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("/lobby/create", h.handleCreate)
	mux.HandleFunc("/lobby/join", h.handleJoin)
	mux.HandleFunc("/lobby/leave", h.handleLeave)
	mux.HandleFunc("/lobby/data", h.handleData)
	mux.HandleFunc("/lobby/invite", h.handleInvite)
	mux.HandleFunc("/lobby/profile", h.handleProfile)
	mux.HandleFunc("/lobby/persona", h.handlePersona)
	mux.HandleFunc("/lobby/avatar", h.handleAvatar)
	mux.HandleFunc("/lobby/friends", h.handleFriends)
	mux.HandleFunc("/lobby/events", h.handleEvents)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus 领域错误到 HTTP 状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNoLobby):
		return http.StatusNotFound
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, ErrLobbyFull):
		return http.StatusConflict
	case errors.Is(err, ErrSelfFriend):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Hub) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Member == "" {
		http.Error(w, "missing member", http.StatusBadRequest)
		return
	}
	snap, err := h.Create(req.Member, req.MaxMembers)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Hub) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !decodePost(w, r, &req) {
		return
	}
	snap, err := h.Join(req.Member, req.Lobby)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Hub) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := h.Leave(req.Member, req.Lobby); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Hub) handleData(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	if err := h.SetData(req.Member, req.Lobby, req.Key, req.Value); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Hub) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req lobbyRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := h.Invite(req.Member, req.To, req.Lobby); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Hub) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Member == "" {
		http.Error(w, "invalid profile", http.StatusBadRequest)
		return
	}
	if a := req.Avatar; a != nil && len(a.Pix) != a.Width*a.Height*4 {
		http.Error(w, "avatar size mismatch", http.StatusBadRequest)
		return
	}
	h.SetProfile(req.Member, req.Profile)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Hub) handlePersona(w http.ResponseWriter, r *http.Request) {
	member := MemberID(r.URL.Query().Get("member"))
	name, status := h.Persona(member)
	writeJSON(w, http.StatusOK, personaResponse{Member: member, Name: name, Status: status})
}

func (h *Hub) handleAvatar(w http.ResponseWriter, r *http.Request) {
	a := h.AvatarOf(MemberID(r.URL.Query().Get("member")))
	if a == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleFriends GET ?member=alice 列出好友；POST {"member":"alice","to":"bob"} 加好友
func (h *Hub) handleFriends(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		member := MemberID(r.URL.Query().Get("member"))
		if member == "" {
			http.Error(w, "missing member query", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, h.Friends(member))
	case http.MethodPost:
		var req lobbyRequest
		if !decodePost(w, r, &req) {
			return
		}
		if req.Member == "" || req.To == "" {
			http.Error(w, "missing member", http.StatusBadRequest)
			return
		}
		if err := h.AddFriend(req.Member, req.To); err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleEvents 事件流：?member=alice，连接断开视为离开大厅
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	member := MemberID(r.URL.Query().Get("member"))
	if member == "" {
		http.Error(w, "missing member query", http.StatusBadRequest)
		return
	}
	// 先订阅再升级，握手完成后产生的通知不会丢失
	events, cancel := h.Subscribe(member)
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.log.Warnw("lobby events upgrade error", "err", err)
		return
	}

	closed := make(chan struct{})
	go func() {
		// 只为感知断线，客户端不发送数据
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		h.Disconnect(member)
		_ = conn.Close()
	}()
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
