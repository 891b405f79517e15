package lobby

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subscriberBuffer = 32

type lobbyState struct {
	id         LobbyID
	owner      MemberID
	members    []MemberID
	maxMembers int
	data       map[string]string
}

func (l *lobbyState) snapshot() Snapshot {
	data := make(map[string]string, len(l.data))
	for k, v := range l.data {
		data[k] = v
	}
	return Snapshot{
		ID:         l.id,
		Owner:      l.owner,
		Members:    slices.Clone(l.members),
		MaxMembers: l.maxMembers,
		Data:       data,
	}
}

// Hub 内存大厅服务：大厅的创建/加入/离开、成员通知、键值数据与成员资料。
// 所有方法并发安全
type Hub struct {
	mu          sync.Mutex
	lobbies     map[LobbyID]*lobbyState
	memberLobby map[MemberID]LobbyID
	profiles    map[MemberID]Profile
	friends     map[MemberID]map[MemberID]struct{}
	subs        map[MemberID]map[int]chan Event
	nextSub     int

	maxMembers int
	log        *zap.SugaredLogger
}

func NewHub(maxMembers int, log *zap.SugaredLogger) *Hub {
	if maxMembers <= 0 {
		maxMembers = 4
	}
	return &Hub{
		lobbies:     make(map[LobbyID]*lobbyState),
		memberLobby: make(map[MemberID]LobbyID),
		profiles:    make(map[MemberID]Profile),
		friends:     make(map[MemberID]map[MemberID]struct{}),
		subs:        make(map[MemberID]map[int]chan Event),
		maxMembers:  maxMembers,
		log:         log,
	}
}

// Subscribe 订阅发给 member 的通知；返回的 cancel 关闭通道
func (h *Hub) Subscribe(member MemberID) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	id := h.nextSub
	h.nextSub++
	if h.subs[member] == nil {
		h.subs[member] = make(map[int]chan Event)
	}
	h.subs[member][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[member]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, member)
				}
			}
			close(ch)
		})
	}
}

// notifyLocked 向成员投递通知（调用方持锁）；订阅方积压时丢弃
func (h *Hub) notifyLocked(member MemberID, ev Event) {
	for _, ch := range h.subs[member] {
		select {
		case ch <- ev:
		default:
			h.log.Warnw("lobby event dropped, subscriber backlog full", "member", member, "kind", ev.Kind)
		}
	}
}

func (h *Hub) broadcastLocked(l *lobbyState, ev Event, except MemberID) {
	for _, m := range l.members {
		if m == except {
			continue
		}
		h.notifyLocked(m, ev)
	}
}

// Create 创建大厅，创建者为房主；已在其他大厅时先离开
func (h *Hub) Create(member MemberID, maxMembers int) (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if maxMembers <= 0 || maxMembers > h.maxMembers {
		maxMembers = h.maxMembers
	}
	h.leaveLocked(member)

	l := &lobbyState{
		id:         LobbyID(uuid.NewString()),
		owner:      member,
		members:    []MemberID{member},
		maxMembers: maxMembers,
		data:       make(map[string]string),
	}
	h.lobbies[l.id] = l
	h.memberLobby[member] = l.id

	snap := l.snapshot()
	h.notifyLocked(member, Event{Kind: EventEntered, Lobby: snap})
	h.log.Infow("lobby created", "lobby", l.id, "owner", member, "maxMembers", maxMembers)
	return snap, nil
}

// Join 加入大厅
func (h *Hub) Join(member MemberID, id LobbyID) (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.lobbies[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("join %s: %w", id, ErrNoLobby)
	}
	if slices.Contains(l.members, member) {
		snap := l.snapshot()
		h.notifyLocked(member, Event{Kind: EventEntered, Lobby: snap})
		return snap, nil
	}
	if len(l.members) >= l.maxMembers {
		return Snapshot{}, fmt.Errorf("join %s: %w", id, ErrLobbyFull)
	}
	h.leaveLocked(member)

	l.members = append(l.members, member)
	h.memberLobby[member] = id
	snap := l.snapshot()
	h.broadcastLocked(l, Event{Kind: EventMemberJoined, Lobby: snap, Member: member}, member)
	h.notifyLocked(member, Event{Kind: EventEntered, Lobby: snap})
	h.log.Infow("lobby member joined", "lobby", id, "member", member, "members", len(l.members))
	return snap, nil
}

// Leave 离开大厅；房主离开时由下一位成员接任，最后一人离开时销毁大厅
func (h *Hub) Leave(member MemberID, id LobbyID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.lobbies[id]
	if !ok {
		return fmt.Errorf("leave %s: %w", id, ErrNoLobby)
	}
	if !slices.Contains(l.members, member) {
		return fmt.Errorf("leave %s: %w", id, ErrNotMember)
	}
	h.leaveLocked(member)
	return nil
}

// Disconnect 成员的事件流断开，视为离开所在大厅；
// 仍有其他事件流（重连后旧连接才关闭）时不处理
func (h *Hub) Disconnect(member MemberID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs[member]) > 0 {
		h.log.Debugw("lobby stream closed, member still subscribed", "member", member)
		return
	}
	h.leaveLocked(member)
}

func (h *Hub) leaveLocked(member MemberID) {
	id, ok := h.memberLobby[member]
	if !ok {
		return
	}
	delete(h.memberLobby, member)
	l, ok := h.lobbies[id]
	if !ok {
		return
	}
	l.members = slices.DeleteFunc(l.members, func(m MemberID) bool { return m == member })
	if len(l.members) == 0 {
		delete(h.lobbies, id)
		h.log.Infow("lobby closed", "lobby", id)
		return
	}
	if l.owner == member {
		l.owner = l.members[0]
	}
	h.broadcastLocked(l, Event{Kind: EventMemberLeft, Lobby: l.snapshot(), Member: member}, "")
	h.log.Infow("lobby member left", "lobby", id, "member", member, "owner", l.owner)
}

// SetData 房主写入大厅数据，所有成员收到 data_changed
func (h *Hub) SetData(member MemberID, id LobbyID, key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.lobbies[id]
	if !ok {
		return fmt.Errorf("set data %s: %w", id, ErrNoLobby)
	}
	if l.owner != member {
		return fmt.Errorf("set data %s: %w", id, ErrNotOwner)
	}
	if l.data[key] == value {
		return nil
	}
	l.data[key] = value
	h.broadcastLocked(l, Event{Kind: EventDataChanged, Lobby: l.snapshot()}, "")
	return nil
}

// Invite 成员邀请好友，被邀请者收到 join_requested
func (h *Hub) Invite(from, to MemberID, id LobbyID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.lobbies[id]
	if !ok {
		return fmt.Errorf("invite %s: %w", id, ErrNoLobby)
	}
	if !slices.Contains(l.members, from) {
		return fmt.Errorf("invite %s: %w", id, ErrNotMember)
	}
	h.notifyLocked(to, Event{Kind: EventJoinRequested, Lobby: l.snapshot(), Member: from})
	return nil
}

// Lobby 查询大厅
func (h *Hub) Lobby(id LobbyID) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.lobbies[id]
	if !ok {
		return Snapshot{}, false
	}
	return l.snapshot(), true
}

// SetProfile 登记或更新成员资料
func (h *Hub) SetProfile(member MemberID, p Profile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.profiles[member] = p
}

// Persona 成员显示名与在线状态；资料未知时返回占位名
func (h *Hub) Persona(member MemberID) (string, Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.profiles[member]
	if !ok || p.Name == "" {
		return PlaceholderName, StatusOffline
	}
	return p.Name, p.Status
}

// AvatarOf 成员头像，没有时返回 nil
func (h *Hub) AvatarOf(member MemberID) *Avatar {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.profiles[member]
	if !ok || p.Avatar == nil {
		return nil
	}
	a := *p.Avatar
	a.Pix = slices.Clone(p.Avatar.Pix)
	return &a
}

// AddFriend 建立双向好友关系
func (h *Hub) AddFriend(a, b MemberID) error {
	if a == b {
		return fmt.Errorf("add friend %s: %w", a, ErrSelfFriend)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pair := range [2][2]MemberID{{a, b}, {b, a}} {
		if h.friends[pair[0]] == nil {
			h.friends[pair[0]] = make(map[MemberID]struct{})
		}
		h.friends[pair[0]][pair[1]] = struct{}{}
	}
	return nil
}

// Friends 成员的好友及其当前资料，按 MemberID 排序
func (h *Hub) Friends(member MemberID) []Persona {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := slices.Sorted(maps.Keys(h.friends[member]))
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		p := Persona{ID: id, Name: PlaceholderName, Status: StatusOffline}
		if prof, ok := h.profiles[id]; ok && prof.Name != "" {
			p.Name, p.Status = prof.Name, prof.Status
		}
		out = append(out, p)
	}
	return out
}

// Connect 进程内客户端（测试与本地工具使用）
func (h *Hub) Connect(member MemberID) *LocalClient {
	events, cancel := h.Subscribe(member)
	return &LocalClient{hub: h, self: member, events: events, cancel: cancel}
}

// LocalClient 直接调用 Hub 的 Service 实现
type LocalClient struct {
	hub    *Hub
	self   MemberID
	events <-chan Event
	cancel func()
}

func (c *LocalClient) Self() MemberID { return c.self }
func (c *LocalClient) Events() <-chan Event { return c.events }

func (c *LocalClient) CreateLobby(_ context.Context, maxMembers int) (Snapshot, error) {
	return c.hub.Create(c.self, maxMembers)
}

func (c *LocalClient) JoinLobby(_ context.Context, id LobbyID) (Snapshot, error) {
	return c.hub.Join(c.self, id)
}

func (c *LocalClient) LeaveLobby(_ context.Context, id LobbyID) error {
	return c.hub.Leave(c.self, id)
}

func (c *LocalClient) SetData(_ context.Context, id LobbyID, key, value string) error {
	return c.hub.SetData(c.self, id, key, value)
}

func (c *LocalClient) PersonaName(_ context.Context, id MemberID) (string, error) {
	name, _ := c.hub.Persona(id)
	return name, nil
}

func (c *LocalClient) Avatar(_ context.Context, id MemberID) (*Avatar, error) {
	return c.hub.AvatarOf(id), nil
}

func (c *LocalClient) AddFriend(_ context.Context, id MemberID) error {
	return c.hub.AddFriend(c.self, id)
}

func (c *LocalClient) Friends(_ context.Context) ([]Persona, error) {
	return c.hub.Friends(c.self), nil
}

// Close 取消订阅并按断线处理
func (c *LocalClient) Close() {
	c.cancel()
	c.hub.Disconnect(c.self)
}
