// Package lobby 大厅：服务端的内存大厅服务（Hub）与客户端侧的成员名单同步、会话状态机
package lobby

import (
	"context"
	"errors"
)

// MemberID 参与者标识
type MemberID string

// LobbyID 大厅标识（uuid）
type LobbyID string

// PlaceholderName 资料尚未缓存时返回的名字
const PlaceholderName = "[unknown]"

// HostAddressKey 大厅数据中发布游戏服务器地址的键
const HostAddressKey = "HostAddress"

var (
	ErrNoLobby     = errors.New("lobby not found")
	ErrNotMember   = errors.New("not a lobby member")
	ErrNotOwner    = errors.New("only the lobby owner may do this")
	ErrLobbyFull   = errors.New("lobby is full")
	ErrUnavailable = errors.New("lobby service unavailable")
	ErrSelfFriend  = errors.New("cannot befriend yourself")
)

// Status 在线状态
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusAway
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusAway:
		return "Away"
	case StatusBusy:
		return "Busy"
	default:
		return "Offline"
	}
}

// Snapshot 大厅当前状态
type Snapshot struct {
	ID         LobbyID           `json:"id"`
	Owner      MemberID          `json:"owner"`
	Members    []MemberID        `json:"members"`
	MaxMembers int               `json:"maxMembers"`
	Data       map[string]string `json:"data,omitempty"`
}

// HasMember 是否包含成员
func (s Snapshot) HasMember(id MemberID) bool {
	for _, m := range s.Members {
		if m == id {
			return true
		}
	}
	return false
}

// EventKind 大厅通知类型
type EventKind string

const (
	EventEntered       EventKind = "entered"
	EventMemberJoined  EventKind = "member_joined"
	EventMemberLeft    EventKind = "member_left"
	EventDataChanged   EventKind = "data_changed"
	EventJoinRequested EventKind = "join_requested"
)

// Event 大厅通知；Member 为加入/离开的成员或邀请人
type Event struct {
	Kind   EventKind `json:"kind"`
	Lobby  Snapshot  `json:"lobby"`
	Member MemberID  `json:"member,omitempty"`
}

// Profile 成员资料
type Profile struct {
	Name   string  `json:"name"`
	Status Status  `json:"status"`
	Avatar *Avatar `json:"avatar,omitempty"`
}

// Persona 好友列表中的一项
type Persona struct {
	ID     MemberID `json:"member"`
	Name   string   `json:"name"`
	Status Status   `json:"status"`
}

// Online 是否在线（离开/忙碌也算在线）
func (p Persona) Online() bool { return p.Status != StatusOffline }

// Avatar 原始 RGBA 像素，行序自下而上（与后端存储一致）
type Avatar struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// Service 客户端视角的大厅服务
type Service interface {
	Self() MemberID
	CreateLobby(ctx context.Context, maxMembers int) (Snapshot, error)
	JoinLobby(ctx context.Context, id LobbyID) (Snapshot, error)
	LeaveLobby(ctx context.Context, id LobbyID) error
	SetData(ctx context.Context, id LobbyID, key, value string) error
	PersonaName(ctx context.Context, id MemberID) (string, error)
	Avatar(ctx context.Context, id MemberID) (*Avatar, error)
	Events() <-chan Event
}
